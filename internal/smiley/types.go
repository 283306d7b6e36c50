package smiley

import (
	"context"
	"errors"
)

// ErrEmptyCode is returned when a smiley without a code is loaded.
var ErrEmptyCode = errors.New("smiley code is required")

// Smiley maps a short text code to an emote asset.
type Smiley struct {
	ID        int64  `json:"id" yaml:"id"`
	Code      string `json:"code" yaml:"code"`
	Path      string `json:"path" yaml:"path"`
	Thought   string `json:"thought,omitempty" yaml:"thought"`
	SortOrder int    `json:"sort_order" yaml:"sort_order"`
}

// Column is the selector column encoded in SortOrder.
func (s Smiley) Column() int { return s.SortOrder / 1000 }

// Row is the selector row encoded in SortOrder.
func (s Smiley) Row() int { return s.SortOrder % 1000 }

// Source lists the smileys known to the forum.
type Source interface {
	List(ctx context.Context) ([]Smiley, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Smiley, error)

func (f SourceFunc) List(ctx context.Context) ([]Smiley, error) { return f(ctx) }
