package embed

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/memohai/forum/internal/card"
)

// LinkHandler is the fallback: it accepts every http(s) URL and unfurls the
// page head into a link card.
type LinkHandler struct {
	UserAgent string
	Client    *http.Client
}

type pageMeta struct {
	title       string
	ogTitle     string
	description string
	ogDesc      string
	image       string
	siteName    string
}

func (h *LinkHandler) Name() string { return "link" }

func (h *LinkHandler) CanHandle(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

func (h *LinkHandler) Expand(ctx context.Context, u *url.URL) (card.Card, error) {
	headers := map[string]string{"Accept": "text/html,application/xhtml+xml"}
	if h.UserAgent != "" {
		headers["User-Agent"] = h.UserAgent
	}
	body, header, err := getBody(ctx, defaultClient(h.Client), u.String(), headers, MaxPageBytes)
	if err != nil {
		return card.Card{}, err
	}
	if ct := strings.ToLower(header.Get("Content-Type")); ct != "" && !strings.Contains(ct, "html") {
		return card.Card{}, ErrNoPreview
	}
	meta := parsePageMeta(body)
	title := collapseSpace(firstNonEmpty(meta.ogTitle, meta.title))
	if title == "" {
		return card.Card{}, ErrNoPreview
	}
	thumb := ""
	if meta.image != "" {
		if ref, err := u.Parse(meta.image); err == nil && (ref.Scheme == "http" || ref.Scheme == "https") {
			thumb = ref.String()
		}
	}
	return card.Card{
		Kind:         card.KindLink,
		Title:        title,
		Description:  cleanDescription(firstNonEmpty(meta.ogDesc, meta.description, meta.siteName)),
		ThumbnailURL: thumb,
	}, nil
}

// parsePageMeta scans the document head for the title and OpenGraph tags.
func parsePageMeta(body []byte) pageMeta {
	var meta pageMeta
	z := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return meta
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "title":
				inTitle = tt == html.StartTagToken
			case "meta":
				applyMeta(&meta, readAttrs(z, hasAttr))
			case "body":
				return meta
			}
		case html.TextToken:
			if inTitle {
				meta.title += string(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "title":
				inTitle = false
			case "head":
				return meta
			}
		}
	}
}

func readAttrs(z *html.Tokenizer, hasAttr bool) map[string]string {
	attrs := map[string]string{}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		attrs[strings.ToLower(string(key))] = string(val)
	}
	return attrs
}

func applyMeta(meta *pageMeta, attrs map[string]string) {
	key := strings.ToLower(firstNonEmpty(attrs["property"], attrs["name"]))
	content := strings.TrimSpace(attrs["content"])
	if content == "" {
		return
	}
	switch key {
	case "og:title":
		meta.ogTitle = content
	case "og:description":
		meta.ogDesc = content
	case "description":
		meta.description = content
	case "og:image", "og:image:url", "twitter:image":
		if meta.image == "" {
			meta.image = content
		}
	case "og:site_name":
		meta.siteName = content
	}
}

// cleanDescription flattens descriptions that ship markup into markdown text.
func cleanDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if !strings.ContainsAny(desc, "<&") {
		return collapseSpace(desc)
	}
	md, err := htmltomarkdown.ConvertString(desc)
	if err != nil {
		return collapseSpace(html.UnescapeString(desc))
	}
	return collapseSpace(md)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
