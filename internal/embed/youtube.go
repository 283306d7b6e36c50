package embed

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/memohai/forum/internal/card"
)

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeHandler expands video links through the oEmbed endpoint.
type YouTubeHandler struct {
	OEmbedURL string
	Client    *http.Client
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ProviderName string `json:"provider_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (h *YouTubeHandler) Name() string { return "youtube" }

func (h *YouTubeHandler) CanHandle(u *url.URL) bool {
	return hostIs(u, "youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be")
}

func (h *YouTubeHandler) Expand(ctx context.Context, u *url.URL) (card.Card, error) {
	id := youtubeVideoID(u)
	if id == "" {
		return card.Card{}, ErrNoMatch
	}
	endpoint := h.OEmbedURL
	if endpoint == "" {
		endpoint = "https://www.youtube.com/oembed"
	}
	watch := "https://www.youtube.com/watch?v=" + id
	target := endpoint + "?" + url.Values{"url": {watch}, "format": {"json"}}.Encode()

	var resp oembedResponse
	if err := getJSON(ctx, defaultClient(h.Client), target, nil, &resp); err != nil {
		return card.Card{}, err
	}
	thumb := resp.ThumbnailURL
	if thumb == "" {
		thumb = "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
	}
	return card.Card{
		Kind:         card.KindVideo,
		Title:        resp.Title,
		Description:  resp.AuthorName,
		ThumbnailURL: thumb,
		EmbedURL:     "https://www.youtube.com/embed/" + id,
	}, nil
}

func youtubeVideoID(u *url.URL) string {
	var id string
	switch {
	case u.Hostname() == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case u.Path == "/watch":
		id = u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/embed/"):
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			id = parts[1]
		}
	}
	if !youtubeIDPattern.MatchString(id) {
		return ""
	}
	return id
}
