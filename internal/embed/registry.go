package embed

import (
	"fmt"
	"net/http"
	"net/url"
)

// Registry is the ordered handler list. Dispatch order is registration
// order; the first handler whose CanHandle accepts a URL is tried first.
type Registry struct {
	handlers []Handler
}

// NewRegistry creates a registry with handlers in priority order.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a handler with the lowest priority so far.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("handler is nil")
	}
	for _, existing := range r.handlers {
		if existing.Name() == h.Name() {
			return fmt.Errorf("handler already registered: %s", h.Name())
		}
	}
	r.handlers = append(r.handlers, h)
	return nil
}

// Candidates returns the handlers accepting u, in priority order.
func (r *Registry) Candidates(u *url.URL) []Handler {
	out := make([]Handler, 0, 2)
	for _, h := range r.handlers {
		if h.CanHandle(u) {
			out = append(out, h)
		}
	}
	return out
}

// Names lists handler names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		names = append(names, h.Name())
	}
	return names
}

// StandardConfig configures the built-in handler set.
type StandardConfig struct {
	Client        *http.Client
	UserAgent     string
	ImgurClientID string
	ImgurAPIBase  string
	YouTubeOEmbed string
}

// NewStandardRegistry registers direct images, imgur, YouTube and the
// generic link fallback, in that order.
func NewStandardRegistry(cfg StandardConfig) *Registry {
	r, _ := NewRegistry(
		ImageHandler{},
		&ImgurHandler{ClientID: cfg.ImgurClientID, APIBase: cfg.ImgurAPIBase, Client: cfg.Client},
		&YouTubeHandler{OEmbedURL: cfg.YouTubeOEmbed, Client: cfg.Client},
		&LinkHandler{UserAgent: cfg.UserAgent, Client: cfg.Client},
	)
	return r
}
