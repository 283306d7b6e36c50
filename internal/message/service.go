package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/memohai/forum/internal/processor"
)

// TextProcessor derives display fields from a raw body.
type TextProcessor interface {
	Process(ctx context.Context, raw string) (processor.Result, error)
}

// Service is the interactive post and edit path. It runs the same
// processor as batch reprocessing, one message at a time.
type Service struct {
	store     Store
	saver     *RetryingSaver
	processor TextProcessor
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(log *slog.Logger, store Store, saver *RetryingSaver, proc TextProcessor) *Service {
	if log == nil {
		log = slog.Default()
	}
	if saver == nil {
		saver = NewRetryingSaver(log, store, DefaultMaxRetries, nil)
	}
	return &Service{
		store:     store,
		saver:     saver,
		processor: proc,
		logger:    log.With(slog.String("service", "message")),
		now:       time.Now,
	}
}

// Preview processes body without persisting anything.
func (s *Service) Preview(ctx context.Context, body string) (processor.Result, error) {
	return s.processor.Process(ctx, body)
}

// Create processes and stores a new message.
func (s *Service) Create(ctx context.Context, body string) (Message, error) {
	res, err := s.processor.Process(ctx, body)
	if err != nil {
		return Message{}, err
	}
	m := Message{OriginalBody: body}
	m.Apply(res, s.now())
	created, err := s.store.Create(ctx, m)
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	s.logger.Info("message created", slog.Int64("id", created.ID), slog.Int("cards", len(created.Cards)))
	return created, nil
}

// Get returns a non-deleted message.
func (s *Service) Get(ctx context.Context, id int64) (Message, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if m.Deleted {
		return Message{}, ErrNotFound
	}
	return m, nil
}

// Edit replaces the original body and re-derives every dependent field.
// A concurrent writer loses: the new body is reapplied on the reloaded row.
func (s *Service) Edit(ctx context.Context, id int64, body string) (Message, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	res, err := s.processor.Process(ctx, body)
	if err != nil {
		return Message{}, err
	}
	now := s.now()
	edit := func(m Message) Message {
		m.OriginalBody = body
		m.Apply(res, now)
		return m
	}
	saved, err := s.saver.Save(ctx, []Message{edit(current)}, func(_ context.Context, fresh Message) (Message, error) {
		return edit(fresh), nil
	})
	if err != nil {
		return Message{}, err
	}
	if len(saved.Saved) == 0 {
		return Message{}, ErrNotFound
	}
	s.logger.Info("message edited", slog.Int64("id", id))
	return saved.Saved[0], nil
}

// Delete soft-deletes a message.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	current.Deleted = true
	saved, err := s.saver.Save(ctx, []Message{current}, func(_ context.Context, fresh Message) (Message, error) {
		fresh.Deleted = true
		return fresh, nil
	})
	if err != nil {
		return err
	}
	if len(saved.Saved) == 0 {
		return ErrNotFound
	}
	s.logger.Info("message deleted", slog.Int64("id", id))
	return nil
}

// IsNotFound reports whether err means the message does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
