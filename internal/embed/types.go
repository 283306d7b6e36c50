package embed

import (
	"context"
	"errors"
	"net/url"

	"github.com/memohai/forum/internal/card"
)

var (
	// ErrNoMatch is returned by Expand when a handler recognized the URL shape
	// but declines it; dispatch moves on to the next handler.
	ErrNoMatch = errors.New("handler declined url")
	// ErrNoPreview means the remote answered but offers nothing to embed.
	// It is not retried and is cached like a failure.
	ErrNoPreview = errors.New("no preview available")
	// ErrInvalidURL is returned by Normalize for unusable input.
	ErrInvalidURL = errors.New("invalid url")
)

// Handler recognizes one class of URL and expands it into a card.
type Handler interface {
	Name() string
	CanHandle(u *url.URL) bool
	Expand(ctx context.Context, u *url.URL) (card.Card, error)
}

// Result is the outcome of expanding one URL. Embedded is false when the
// URL must be rendered as a plain hyperlink.
type Result struct {
	URL      string
	Card     card.Card
	Embedded bool
}
