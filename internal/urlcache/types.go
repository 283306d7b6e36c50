package urlcache

import (
	"context"
	"time"

	"github.com/memohai/forum/internal/card"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Entry is the cached expansion of one normalized URL.
type Entry struct {
	URL       string    `json:"url"`
	Card      card.Card `json:"card"`
	Status    Status    `json:"status"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Failed reports whether the last expansion failed.
func (e Entry) Failed() bool { return e.Status == StatusFailed }

// Fresh reports whether the entry can be served without a network call.
// Failed entries are fresh inside the cooldown window; successful entries are
// fresh until maxAge has passed, or forever when maxAge is zero.
func (e Entry) Fresh(now time.Time, cooldown, maxAge time.Duration) bool {
	age := now.Sub(e.FetchedAt)
	if e.Failed() {
		return age < cooldown
	}
	if maxAge <= 0 {
		return true
	}
	return age < maxAge
}

// Store persists dedup entries keyed by normalized URL. Put is an upsert;
// concurrent writers for one key resolve as last write wins.
type Store interface {
	Get(ctx context.Context, url string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	PurgeFailed(ctx context.Context, olderThan time.Time) (int, error)
}
