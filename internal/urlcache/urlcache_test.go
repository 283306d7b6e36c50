package urlcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/forum/internal/logger"
)

func TestEntryFresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	failed := Entry{Status: StatusFailed, FetchedAt: now.Add(-30 * time.Minute)}
	assert.True(t, failed.Fresh(now, time.Hour, 0))
	assert.False(t, failed.Fresh(now, 10*time.Minute, 0))

	ok := Entry{Status: StatusOK, FetchedAt: now.Add(-48 * time.Hour)}
	assert.True(t, ok.Fresh(now, time.Hour, 0))
	assert.False(t, ok.Fresh(now, time.Hour, 24*time.Hour))
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, Entry{URL: "https://a.test/", Status: StatusFailed}))
	require.NoError(t, s.Put(ctx, Entry{URL: "https://a.test/", Status: StatusOK}))

	got, ok, err := s.Get(ctx, "https://a.test/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusOK, got.Status)
	assert.Equal(t, 1, s.Len())

	assert.Error(t, s.Put(ctx, Entry{}))
}

func TestPurgerRunOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, Entry{URL: "old-fail", Status: StatusFailed, FetchedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Put(ctx, Entry{URL: "new-fail", Status: StatusFailed, FetchedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Put(ctx, Entry{URL: "old-ok", Status: StatusOK, FetchedAt: now.Add(-72 * time.Hour)}))

	p := NewPurger(logger.Discard(), s, time.Hour)
	p.now = func() time.Time { return now }
	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, _ := s.Get(ctx, "old-fail")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "old-ok")
	assert.True(t, ok)
}

func TestPurgerRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	p := NewPurger(logger.Discard(), NewMemoryStore(), time.Hour)
	assert.Error(t, p.Start("not a schedule"))
}
