// Package card defines the rich-preview fragment produced for a detected URL.
package card

import (
	"github.com/google/uuid"
)

type Kind string

const (
	KindImage   Kind = "image"
	KindGallery Kind = "gallery"
	KindVideo   Kind = "video"
	KindLink    Kind = "link"
)

// namespace scopes card ids so the same URL always yields the same id.
var namespace = uuid.MustParse("6f1c3a52-8f0e-5b7a-9d3c-2e4b1a0f7c11")

// Card is an embeddable preview of one normalized URL.
type Card struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	EmbedURL     string `json:"embed_url,omitempty"`
	Handler      string `json:"handler"`
}

// IDFor returns the deterministic card id of a normalized URL.
func IDFor(normalizedURL string) string {
	return uuid.NewSHA1(namespace, []byte(normalizedURL)).String()
}

// Label is the human text used for the card in plain-text contexts.
func (c Card) Label() string {
	if c.Title != "" {
		return c.Title
	}
	return c.URL
}
