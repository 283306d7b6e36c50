package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/forum/internal/urlcache"
)

// URLCacheStore implements urlcache.Store on the stripped_urls table.
type URLCacheStore struct {
	pool *pgxpool.Pool
}

func NewURLCacheStore(pool *pgxpool.Pool) *URLCacheStore {
	return &URLCacheStore{pool: pool}
}

var _ urlcache.Store = (*URLCacheStore)(nil)

func (s *URLCacheStore) Get(ctx context.Context, url string) (urlcache.Entry, bool, error) {
	var (
		e    urlcache.Entry
		raw  []byte
		stat string
	)
	err := s.pool.QueryRow(ctx, `SELECT url, card, status, fetched_at FROM stripped_urls WHERE url = $1`, url).
		Scan(&e.URL, &raw, &stat, &e.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return urlcache.Entry{}, false, nil
	}
	if err != nil {
		return urlcache.Entry{}, false, fmt.Errorf("get url entry: %w", err)
	}
	if err := json.Unmarshal(raw, &e.Card); err != nil {
		return urlcache.Entry{}, false, fmt.Errorf("decode url entry card: %w", err)
	}
	e.Status = urlcache.Status(stat)
	return e, true, nil
}

// Put upserts the entry. Concurrent writers for one url resolve as last
// write wins.
func (s *URLCacheStore) Put(ctx context.Context, e urlcache.Entry) error {
	if e.URL == "" {
		return fmt.Errorf("entry url is required")
	}
	raw, err := json.Marshal(e.Card)
	if err != nil {
		return fmt.Errorf("encode url entry card: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO stripped_urls (url, card, status, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO UPDATE SET card = EXCLUDED.card, status = EXCLUDED.status, fetched_at = EXCLUDED.fetched_at`,
		e.URL, raw, string(e.Status), e.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("put url entry: %w", err)
	}
	return nil
}

func (s *URLCacheStore) PurgeFailed(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stripped_urls WHERE status = $1 AND fetched_at < $2`,
		string(urlcache.StatusFailed), olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge url entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
