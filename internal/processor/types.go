package processor

import (
	"context"
	"strings"

	"github.com/memohai/forum/internal/card"
	"github.com/memohai/forum/internal/embed"
	"github.com/memohai/forum/internal/smiley"
)

const (
	DefaultMaxBodyRunes      = 50000
	DefaultShortPreviewRunes = 100
	DefaultLongPreviewRunes  = 500

	ellipsis = "…"
)

// Expander resolves one URL found in a message. Implementations absorb
// handler failures and report them as a non-embedded result.
type Expander interface {
	Expand(ctx context.Context, raw string) embed.Result
}

// SmileySource hands out the smiley set for one message.
type SmileySource interface {
	Snapshot() *smiley.Snapshot
}

// Limits bounds the body and the two previews, all counted in runes.
type Limits struct {
	MaxBodyRunes      int
	ShortPreviewRunes int
	LongPreviewRunes  int
}

func (l Limits) withDefaults() Limits {
	if l.MaxBodyRunes <= 0 {
		l.MaxBodyRunes = DefaultMaxBodyRunes
	}
	if l.ShortPreviewRunes <= 0 {
		l.ShortPreviewRunes = DefaultShortPreviewRunes
	}
	if l.LongPreviewRunes <= 0 {
		l.LongPreviewRunes = DefaultLongPreviewRunes
	}
	return l
}

// Result holds everything derived from one raw message body.
type Result struct {
	DisplayBody  string       `json:"display_body"`
	ShortPreview string       `json:"short_preview"`
	LongPreview  string       `json:"long_preview"`
	Cards        []card.Card  `json:"cards"`
	Errors       []FieldError `json:"errors,omitempty"`
}

// FieldError is one caller-facing validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError rejects a body before anything is derived or persisted.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(code, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: "body", Code: code, Message: message}}}
}
