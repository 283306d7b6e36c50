package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/memohai/forum/internal/metrics"
)

// DefaultMaxRetries is the number of reload-and-retry cycles after the
// first write attempt.
const DefaultMaxRetries = 3

// Reapply rebuilds a pending record on top of the freshly loaded row.
type Reapply func(ctx context.Context, fresh Message) (Message, error)

// RetryingSaver wraps Store.SaveAll with reload-and-retry on version
// conflicts. Conflicting rows are replaced by their stored state and the
// pending change is reapplied wholesale; there is no field-level merge.
type RetryingSaver struct {
	store      Store
	maxRetries int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewRetryingSaver(log *slog.Logger, store Store, maxRetries int, m *metrics.Metrics) *RetryingSaver {
	if log == nil {
		log = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryingSaver{
		store:      store,
		maxRetries: maxRetries,
		metrics:    m,
		logger:     log.With(slog.String("service", "message_saver")),
	}
}

// Save writes records in one SaveAll. After the retry bound it returns an
// error wrapping ErrConflictRetriesExceeded and the last *ConflictError;
// nothing is left partially applied.
func (r *RetryingSaver) Save(ctx context.Context, records []Message, reapply Reapply) (SaveResult, error) {
	pending := records
	var skipped []int64
	for attempt := 0; ; attempt++ {
		res, err := r.store.SaveAll(ctx, pending)
		if err == nil {
			res.Skipped = append(res.Skipped, skipped...)
			return res, nil
		}
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			return SaveResult{}, err
		}
		r.metrics.Conflict()
		r.logger.Warn("save conflict",
			slog.Int("attempt", attempt+1),
			slog.Any("ids", conflict.IDs),
		)
		if attempt >= r.maxRetries {
			return SaveResult{}, fmt.Errorf("%w after %d attempts: %w", ErrConflictRetriesExceeded, attempt+1, conflict)
		}

		var dropped []int64
		pending, dropped, err = r.reload(ctx, pending, conflict.IDs, reapply)
		if err != nil {
			return SaveResult{}, err
		}
		skipped = append(skipped, dropped...)
	}
}

func (r *RetryingSaver) reload(ctx context.Context, pending []Message, ids []int64, reapply Reapply) ([]Message, []int64, error) {
	fresh, err := r.store.Load(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("reload conflicting messages: %w", err)
	}
	byID := make(map[int64]Message, len(fresh))
	for _, m := range fresh {
		byID[m.ID] = m
	}
	conflicting := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		conflicting[id] = struct{}{}
	}

	next := make([]Message, 0, len(pending))
	var dropped []int64
	for _, m := range pending {
		if _, ok := conflicting[m.ID]; !ok {
			next = append(next, m)
			continue
		}
		// Vanished and deleted rows stay pending; SaveAll reports them as skipped.
		stored, ok := byID[m.ID]
		if !ok {
			next = append(next, m)
			continue
		}
		if stored.Deleted {
			next = append(next, stored)
			continue
		}
		updated, err := reapply(ctx, stored)
		if errors.Is(err, ErrSkipRecord) {
			dropped = append(dropped, m.ID)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		updated.Version = stored.Version
		next = append(next, updated)
	}
	return next, dropped, nil
}
