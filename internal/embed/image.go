package embed

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/memohai/forum/internal/card"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// ImageHandler embeds direct links to image files. It makes no network call.
type ImageHandler struct{}

func (ImageHandler) Name() string { return "image" }

func (ImageHandler) CanHandle(u *url.URL) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func (ImageHandler) Expand(_ context.Context, u *url.URL) (card.Card, error) {
	return card.Card{
		Kind:         card.KindImage,
		Title:        path.Base(u.Path),
		ThumbnailURL: u.String(),
		EmbedURL:     u.String(),
	}, nil
}
