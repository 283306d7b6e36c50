package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/forum/internal/logger"
	"github.com/memohai/forum/internal/message"
	"github.com/memohai/forum/internal/processor"
	"github.com/memohai/forum/internal/reprocess"
)

type flakyRunner struct {
	*reprocess.Controller
	failures int
}

func (r *flakyRunner) Continue(ctx context.Context, st reprocess.State) (reprocess.State, reprocess.Outcome, error) {
	if r.failures > 0 {
		r.failures--
		return st, reprocess.Outcome{}, errors.New("connection reset")
	}
	return r.Controller.Continue(ctx, st)
}

func newRunner(t *testing.T, n int) (*reprocess.Controller, *message.MemoryStore) {
	t.Helper()
	store := message.NewMemoryStore()
	for i := 0; i < n; i++ {
		_, err := store.Create(context.Background(), message.Message{OriginalBody: "post"})
		require.NoError(t, err)
	}
	proc := processor.New(logger.Discard(), nil, nil, processor.Limits{})
	return reprocess.NewController(logger.Discard(), store, nil, proc, 2, nil), store
}

func TestRunBatchRetriesFailedPages(t *testing.T) {
	reprocessRetryDelay = time.Millisecond
	reprocessPageRetries = 3

	ctrl, store := newRunner(t, 5)
	var out bytes.Buffer
	err := runBatch(context.Background(), &out, &flakyRunner{Controller: ctrl, failures: 2}, reprocess.StageProcessMessages, logger.Discard())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "3 pages")
	assert.Contains(t, out.String(), "5 processed")

	n, _ := store.Count(context.Background(), message.Filter{Unprocessed: true})
	assert.Zero(t, n)
}

func TestRunBatchGivesUp(t *testing.T) {
	reprocessRetryDelay = time.Millisecond
	reprocessPageRetries = 1

	ctrl, _ := newRunner(t, 1)
	err := runBatch(context.Background(), &bytes.Buffer{}, &flakyRunner{Controller: ctrl, failures: 5}, reprocess.StageReprocessMessages, logger.Discard())
	assert.ErrorContains(t, err, "failed 2 times")

	err = runBatch(context.Background(), &bytes.Buffer{}, ctrl, reprocess.Stage("recount-replies"), logger.Discard())
	assert.ErrorIs(t, err, reprocess.ErrUnknownStage)
}
