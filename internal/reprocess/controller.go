// Package reprocess drives the message processor over the corpus one page
// per call. All progress lives in the State returned to the caller.
package reprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/memohai/forum/internal/embed"
	"github.com/memohai/forum/internal/message"
	"github.com/memohai/forum/internal/metrics"
	"github.com/memohai/forum/internal/processor"
)

const DefaultPageSize = 25

// RecordFailure is a record left untouched because its body failed
// validation.
type RecordFailure struct {
	ID     int64                  `json:"id"`
	Fields []processor.FieldError `json:"fields"`
}

// Outcome describes the work done by one Continue call.
type Outcome struct {
	Complete  bool            `json:"complete"`
	Processed int             `json:"processed"`
	Skipped   int             `json:"skipped"`
	Failures  []RecordFailure `json:"failures,omitempty"`
}

type Controller struct {
	store     message.Store
	saver     *message.RetryingSaver
	processor message.TextProcessor
	pageSize  int
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewController(log *slog.Logger, store message.Store, saver *message.RetryingSaver, proc message.TextProcessor, pageSize int, m *metrics.Metrics) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if saver == nil {
		saver = message.NewRetryingSaver(log, store, message.DefaultMaxRetries, m)
	}
	return &Controller{
		store:     store,
		saver:     saver,
		processor: proc,
		pageSize:  pageSize,
		metrics:   m,
		logger:    log.With(slog.String("service", "reprocess")),
		now:       time.Now,
	}
}

// Start plans a run without processing anything. The eligible set is fixed
// at the current highest id; later messages belong to a later run.
func (c *Controller) Start(ctx context.Context, stage Stage) (State, error) {
	if !stage.Valid() {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	maxID, err := c.store.MaxID(ctx)
	if err != nil {
		return State{}, fmt.Errorf("read max id: %w", err)
	}
	count := 0
	if maxID > 0 {
		if count, err = c.store.Count(ctx, stage.filter(maxID)); err != nil {
			return State{}, fmt.Errorf("count messages: %w", err)
		}
	}
	st := State{
		Stage:       stage,
		CurrentStep: -1,
		TotalSteps:  (count + c.pageSize - 1) / c.pageSize,
		PageSize:    c.pageSize,
		MaxID:       maxID,
		StartedAt:   c.now().UTC(),
	}
	c.logger.Info("batch started",
		slog.String("stage", string(stage)),
		slog.Int("records", count),
		slog.Int("total_steps", st.TotalSteps),
	)
	return st, nil
}

// Continue processes the page for st and returns the advanced state. On
// any error st is returned unchanged, so repeating the call retries the
// same page.
func (c *Controller) Continue(ctx context.Context, st State) (State, Outcome, error) {
	if err := st.validate(); err != nil {
		return st, Outcome{}, err
	}
	if st.Complete() {
		return st, Outcome{Complete: true}, nil
	}
	step := st.CurrentStep
	if step < 0 {
		step = 0
	}
	stage := string(st.Stage)

	page, err := c.store.ListPage(ctx, message.PageQuery{
		Filter: st.Stage.filter(st.MaxID),
		Before: st.Cursor,
		Limit:  st.PageSize,
	})
	if err != nil {
		c.metrics.Page(stage, "failed")
		return st, Outcome{}, fmt.Errorf("list page %d: %w", step, err)
	}

	pctx := ctx
	if st.Stage == StageReprocessMessages {
		pctx = embed.WithRefreshBefore(ctx, st.StartedAt)
	}
	now := c.now()
	records := make([]message.Message, 0, len(page))
	var failures []RecordFailure
	for _, m := range page {
		res, err := c.processor.Process(pctx, m.OriginalBody)
		var verr *processor.ValidationError
		if errors.As(err, &verr) {
			failures = append(failures, RecordFailure{ID: m.ID, Fields: verr.Fields})
			continue
		}
		if err != nil {
			c.metrics.Page(stage, "failed")
			return st, Outcome{}, fmt.Errorf("process message %d: %w", m.ID, err)
		}
		m.Apply(res, now)
		records = append(records, m)
	}

	saved, err := c.saver.Save(ctx, records, func(ctx context.Context, fresh message.Message) (message.Message, error) {
		res, err := c.processor.Process(pctx, fresh.OriginalBody)
		if err != nil {
			var verr *processor.ValidationError
			if errors.As(err, &verr) {
				return message.Message{}, message.ErrSkipRecord
			}
			return message.Message{}, err
		}
		fresh.Apply(res, now)
		return fresh, nil
	})
	if err != nil {
		c.metrics.Page(stage, "failed")
		c.logger.Warn("batch page failed",
			slog.String("stage", stage),
			slog.Int("step", step),
			slog.Any("error", err),
		)
		return st, Outcome{}, fmt.Errorf("save page %d: %w", step, err)
	}

	next := st
	next.CurrentStep = step + 1
	if len(page) > 0 {
		next.Cursor = page[len(page)-1].ID
	}
	out := Outcome{
		Complete:  next.Complete(),
		Processed: len(saved.Saved),
		Skipped:   len(saved.Skipped),
		Failures:  failures,
	}
	c.metrics.Page(stage, "ok")
	c.metrics.Records(stage, "processed", out.Processed)
	c.metrics.Records(stage, "skipped", out.Skipped)
	c.metrics.Records(stage, "invalid", len(failures))
	c.logger.Info("batch page done",
		slog.String("stage", stage),
		slog.Int("step", next.CurrentStep),
		slog.Int("total_steps", next.TotalSteps),
		slog.Int("processed", out.Processed),
	)
	return next, out, nil
}
