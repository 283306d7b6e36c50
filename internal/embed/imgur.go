package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/memohai/forum/internal/card"
)

var imgurIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{5,10}$`)

// ImgurHandler expands imgur albums, gallery posts and image pages through
// the imgur API. Direct i.imgur.com files are left to ImageHandler.
type ImgurHandler struct {
	ClientID string
	APIBase  string
	Client   *http.Client
}

type imgurImage struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	MP4         string `json:"mp4"`
}

type imgurAlbum struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Link        string       `json:"link"`
	Cover       string       `json:"cover"`
	IsAlbum     bool         `json:"is_album"`
	ImagesCount int          `json:"images_count"`
	Images      []imgurImage `json:"images"`
}

type imgurGalleryResponse struct {
	Data    imgurAlbum `json:"data"`
	Success bool       `json:"success"`
	Status  int        `json:"status"`
}

type imgurImageResponse struct {
	Data    imgurImage `json:"data"`
	Success bool       `json:"success"`
	Status  int        `json:"status"`
}

func (h *ImgurHandler) Name() string { return "imgur" }

func (h *ImgurHandler) CanHandle(u *url.URL) bool {
	if strings.TrimSpace(h.ClientID) == "" {
		return false
	}
	return hostIs(u, "imgur.com", "www.imgur.com", "m.imgur.com")
}

func (h *ImgurHandler) Expand(ctx context.Context, u *url.URL) (card.Card, error) {
	kind, id := parseImgurPath(u.Path)
	if id == "" {
		return card.Card{}, ErrNoMatch
	}
	base := strings.TrimRight(h.APIBase, "/")
	if base == "" {
		base = "https://api.imgur.com/3"
	}
	headers := map[string]string{"Authorization": "Client-ID " + h.ClientID}
	client := defaultClient(h.Client)

	if kind == "image" {
		var resp imgurImageResponse
		if err := getJSON(ctx, client, base+"/image/"+id, headers, &resp); err != nil {
			return card.Card{}, err
		}
		if !resp.Success {
			return card.Card{}, fmt.Errorf("imgur image %s: status %d", id, resp.Status)
		}
		link := firstNonEmpty(resp.Data.MP4, resp.Data.Link)
		return card.Card{
			Kind:         card.KindImage,
			Title:        resp.Data.Title,
			Description:  resp.Data.Description,
			ThumbnailURL: resp.Data.Link,
			EmbedURL:     link,
		}, nil
	}

	var resp imgurGalleryResponse
	if err := getJSON(ctx, client, base+"/"+kind+"/"+id, headers, &resp); err != nil {
		return card.Card{}, err
	}
	if !resp.Success {
		return card.Card{}, fmt.Errorf("imgur %s %s: status %d", kind, id, resp.Status)
	}
	album := resp.Data
	thumb := ""
	if len(album.Images) > 0 {
		thumb = album.Images[0].Link
	} else if album.Cover != "" {
		thumb = "https://i.imgur.com/" + album.Cover + ".jpg"
	} else if !album.IsAlbum && album.Link != "" {
		thumb = album.Link
	}
	return card.Card{
		Kind:         card.KindGallery,
		Title:        album.Title,
		Description:  album.Description,
		ThumbnailURL: thumb,
		EmbedURL:     album.Link,
	}, nil
}

// parseImgurPath maps /a/{id}, /gallery/{id} and /{id} to an API resource.
func parseImgurPath(p string) (kind, id string) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "a":
		kind, id = "album", parts[1]
	case len(parts) == 2 && parts[0] == "gallery":
		kind, id = "gallery", parts[1]
	case len(parts) == 1:
		kind, id = "image", parts[0]
	default:
		return "", ""
	}
	if !imgurIDPattern.MatchString(id) {
		return "", ""
	}
	return kind, id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
