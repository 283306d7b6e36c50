package db_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/forum/internal/card"
	"github.com/memohai/forum/internal/db"
	"github.com/memohai/forum/internal/logger"
	"github.com/memohai/forum/internal/message"
	"github.com/memohai/forum/internal/processor"
	"github.com/memohai/forum/internal/smiley"
	"github.com/memohai/forum/internal/urlcache"
)

func setupIntegrationTest(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}
	ctx := context.Background()
	if err := db.Migrate(logger.Discard(), dsn, false); err != nil {
		t.Skipf("skip integration test: migrate failed: %v", err)
	}
	pool, err := db.OpenDSN(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	_, err = pool.Exec(ctx, `TRUNCATE messages, smileys, stripped_urls RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func processorResult(body string) processor.Result {
	u := "https://example.com/" + body
	return processor.Result{
		DisplayBody:  "<p>" + body + "</p>",
		ShortPreview: body,
		LongPreview:  body,
		Cards:        []card.Card{{ID: card.IDFor(u), Kind: card.KindLink, URL: u, Handler: "link"}},
	}
}

func TestMessageStoreSaveAll(t *testing.T) {
	pool := setupIntegrationTest(t)
	ctx := context.Background()
	store := db.NewMessageStore(pool)

	var created []message.Message
	for _, body := range []string{"one", "two", "three"} {
		m, err := store.Create(ctx, message.Message{OriginalBody: body})
		require.NoError(t, err)
		assert.EqualValues(t, 1, m.Version)
		assert.False(t, m.Processed)
		created = append(created, m)
	}

	maxID, err := store.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, created[2].ID, maxID)

	page, err := store.ListPage(ctx, message.PageQuery{Filter: message.Filter{Unprocessed: true, MaxID: maxID}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, created[2].ID, page[0].ID)
	assert.Equal(t, created[1].ID, page[1].ID)

	for i := range page {
		page[i].Apply(processorResult(page[i].OriginalBody), time.Now())
	}
	res, err := store.SaveAll(ctx, page)
	require.NoError(t, err)
	require.Len(t, res.Saved, 2)
	assert.EqualValues(t, 2, res.Saved[0].Version)
	assert.Equal(t, "<p>three</p>", res.Saved[0].DisplayBody)
	require.Len(t, res.Saved[0].Cards, 1)

	// A stale version rolls the whole batch back.
	stale := []message.Message{res.Saved[0], page[1]}
	stale[0].DisplayBody = "stale write"
	_, err = store.SaveAll(ctx, stale)
	var conflict *message.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []int64{page[1].ID}, conflict.IDs)
	got, err := store.Get(ctx, res.Saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>three</p>", got.DisplayBody)

	n, err := store.Count(ctx, message.Filter{Unprocessed: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	empty, err := store.SaveAll(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Saved)
}

func TestMessageStoreSkipsDeletedRows(t *testing.T) {
	pool := setupIntegrationTest(t)
	ctx := context.Background()
	store := db.NewMessageStore(pool)

	m, err := store.Create(ctx, message.Message{OriginalBody: "gone"})
	require.NoError(t, err)
	del := m
	del.Deleted = true
	_, err = store.SaveAll(ctx, []message.Message{del})
	require.NoError(t, err)

	m.DisplayBody = "late"
	res, err := store.SaveAll(ctx, []message.Message{m, {ID: 9999, Version: 1}})
	require.NoError(t, err)
	assert.Empty(t, res.Saved)
	assert.Equal(t, []int64{m.ID, 9999}, res.Skipped)

	loaded, err := store.Load(ctx, []int64{m.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].Deleted)

	_, err = store.Get(ctx, 9999)
	assert.ErrorIs(t, err, message.ErrNotFound)
}

func TestURLCacheStoreUpsertAndPurge(t *testing.T) {
	pool := setupIntegrationTest(t)
	ctx := context.Background()
	store := db.NewURLCacheStore(pool)

	old := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Microsecond)
	require.NoError(t, store.Put(ctx, urlcache.Entry{URL: "https://a.test/", Status: urlcache.StatusFailed, FetchedAt: old}))
	require.NoError(t, store.Put(ctx, urlcache.Entry{URL: "https://b.test/", Status: urlcache.StatusFailed, FetchedAt: old}))
	require.NoError(t, store.Put(ctx, urlcache.Entry{
		URL:       "https://a.test/",
		Status:    urlcache.StatusOK,
		Card:      card.Card{ID: card.IDFor("https://a.test/"), Kind: card.KindLink, URL: "https://a.test/", Handler: "link"},
		FetchedAt: old,
	}))

	e, ok, err := store.Get(ctx, "https://a.test/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, urlcache.StatusOK, e.Status)
	assert.Equal(t, card.KindLink, e.Card.Kind)

	n, err := store.PurgeFailed(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err = store.Get(ctx, "https://b.test/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSmileyStoreImport(t *testing.T) {
	pool := setupIntegrationTest(t)
	ctx := context.Background()
	store := db.NewSmileyStore(pool)

	n, err := store.Import(ctx, []smiley.Smiley{
		{Code: ":)", Path: "/s/smile.gif", SortOrder: 1001},
		{Code: ":))", Path: "/s/grin.gif", SortOrder: 1002},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = store.Import(ctx, []smiley.Smiley{{Code: ":)", Path: "/s/smile2.gif", SortOrder: 1001}})
	require.NoError(t, err)

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/s/smile2.gif", items[0].Path)

	m := smiley.NewMap(logger.Discard(), store)
	require.NoError(t, m.Reload(ctx))
	assert.Equal(t, 2, m.Snapshot().Len())
}
