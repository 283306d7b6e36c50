package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memohai/forum/internal/card"
	"github.com/memohai/forum/internal/processor"
)

var (
	// ErrNotFound is returned for missing or deleted messages.
	ErrNotFound = errors.New("message not found")
	// ErrConflictRetriesExceeded wraps the last *ConflictError once the retry
	// bound is spent.
	ErrConflictRetriesExceeded = errors.New("concurrent update retries exceeded")
	// ErrSkipRecord may be returned by a Reapply func to drop a record from
	// the pending write. The record is reported in SaveResult.Skipped.
	ErrSkipRecord = errors.New("skip record")
)

// Message is one forum post. Display, preview and card fields are derived
// from OriginalBody and are never edited directly.
type Message struct {
	ID           int64       `json:"id"`
	OriginalBody string      `json:"original_body"`
	DisplayBody  string      `json:"display_body"`
	ShortPreview string      `json:"short_preview"`
	LongPreview  string      `json:"long_preview"`
	Cards        []card.Card `json:"cards"`
	Processed    bool        `json:"processed"`
	Deleted      bool        `json:"deleted"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ProcessedAt  time.Time   `json:"processed_at,omitempty"`
}

// Apply stores the derived fields of res and marks the message processed.
func (m *Message) Apply(res processor.Result, now time.Time) {
	m.DisplayBody = res.DisplayBody
	m.ShortPreview = res.ShortPreview
	m.LongPreview = res.LongPreview
	m.Cards = res.Cards
	if m.Cards == nil {
		m.Cards = []card.Card{}
	}
	m.Processed = true
	m.ProcessedAt = now
}

// Filter selects the non-deleted messages a batch stage works on.
type Filter struct {
	// Unprocessed limits the set to messages never processed.
	Unprocessed bool
	// MaxID caps the id range; zero means no cap.
	MaxID int64
}

// PageQuery selects up to Limit messages matching Filter with id below
// Before (no lower cursor when zero), in descending id order.
type PageQuery struct {
	Filter Filter
	Before int64
	Limit  int
}

// SaveResult reports a committed SaveAll. Saved holds the stored rows with
// their new versions; Skipped lists ids that were missing or deleted.
type SaveResult struct {
	Saved   []Message
	Skipped []int64
}

// ConflictError is returned by SaveAll when the stored version of any row
// differs from the version the caller loaded. Nothing is written.
type ConflictError struct {
	IDs []int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on messages %v", e.IDs)
}

// Store persists messages with optimistic concurrency on Version.
type Store interface {
	Create(ctx context.Context, m Message) (Message, error)
	Get(ctx context.Context, id int64) (Message, error)
	Count(ctx context.Context, f Filter) (int, error)
	MaxID(ctx context.Context) (int64, error)
	ListPage(ctx context.Context, q PageQuery) ([]Message, error)
	// Load returns the rows for ids that exist, deleted ones included.
	Load(ctx context.Context, ids []int64) ([]Message, error)
	// SaveAll writes every message atomically or none of them.
	SaveAll(ctx context.Context, msgs []Message) (SaveResult, error)
}
