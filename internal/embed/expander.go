package embed

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/memohai/forum/internal/card"
	"github.com/memohai/forum/internal/metrics"
	"github.com/memohai/forum/internal/urlcache"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultCooldown = time.Hour
	// maxAttempts is one try plus one retry.
	maxAttempts = 2
)

// Options tunes an Expander.
type Options struct {
	Timeout  time.Duration
	Cooldown time.Duration
	MaxAge   time.Duration
	// Limiter throttles outbound handler calls. Nil means unlimited.
	Limiter *rate.Limiter
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Expander turns raw URLs into cards through the dedup store and the
// handler registry. Handler failures never surface to callers.
type Expander struct {
	registry *Registry
	store    urlcache.Store
	opts     Options
	group    singleflight.Group
	logger   *slog.Logger
}

func NewExpander(log *slog.Logger, registry *Registry, store urlcache.Store, opts Options) *Expander {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Expander{
		registry: registry,
		store:    store,
		opts:     opts,
		logger:   log.With(slog.String("service", "embed")),
	}
}

type refreshKey struct{}

// WithRefreshBefore marks dedup entries fetched before t as stale, so a
// reprocessing run fetches every URL again exactly once.
func WithRefreshBefore(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, refreshKey{}, t)
}

func refreshBefore(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(refreshKey{}).(time.Time)
	return t, ok && !t.IsZero()
}

// Expand resolves raw into a card or a plain-link result.
func (e *Expander) Expand(ctx context.Context, raw string) Result {
	u, err := Normalize(raw)
	if err != nil {
		return Result{URL: raw}
	}
	key := u.String()
	if ctx.Err() != nil {
		return Result{URL: key}
	}
	// The fetch is shared by every waiter on key, so it must not stop or
	// record a failure because one of them went away.
	ch := e.group.DoChan(key, func() (any, error) {
		return e.expand(context.WithoutCancel(ctx), u, key), nil
	})
	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		return Result{URL: key}
	}
}

func (e *Expander) expand(ctx context.Context, u *url.URL, key string) Result {
	plain := Result{URL: key}
	if entry, ok := e.cached(ctx, key); ok {
		if entry.Failed() {
			e.opts.Metrics.Expansion(entry.Card.Handler, "suppressed")
			return plain
		}
		e.opts.Metrics.Expansion(entry.Card.Handler, "cached")
		return Result{URL: key, Card: entry.Card, Embedded: true}
	}

	for _, h := range e.registry.Candidates(u) {
		c, err := e.attempt(ctx, h, u)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		if err != nil {
			e.logger.Debug("url expansion failed",
				slog.String("handler", h.Name()),
				slog.String("url", key),
				slog.Any("error", err),
			)
			e.opts.Metrics.Expansion(h.Name(), "failed")
			e.record(ctx, urlcache.Entry{
				URL:       key,
				Card:      card.Card{ID: card.IDFor(key), Kind: card.KindLink, URL: key, Handler: h.Name()},
				Status:    urlcache.StatusFailed,
				FetchedAt: e.opts.Now(),
			})
			return plain
		}
		c.ID = card.IDFor(key)
		c.URL = key
		c.Handler = h.Name()
		e.opts.Metrics.Expansion(h.Name(), "ok")
		e.record(ctx, urlcache.Entry{URL: key, Card: c, Status: urlcache.StatusOK, FetchedAt: e.opts.Now()})
		return Result{URL: key, Card: c, Embedded: true}
	}
	e.opts.Metrics.Expansion("none", "fallback")
	return plain
}

func (e *Expander) cached(ctx context.Context, key string) (urlcache.Entry, bool) {
	if e.store == nil {
		return urlcache.Entry{}, false
	}
	entry, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("url cache lookup failed", slog.String("url", key), slog.Any("error", err))
		return urlcache.Entry{}, false
	}
	if !ok {
		return urlcache.Entry{}, false
	}
	if before, refresh := refreshBefore(ctx); refresh && entry.FetchedAt.Before(before) {
		return urlcache.Entry{}, false
	}
	if !entry.Fresh(e.opts.Now(), e.opts.Cooldown, e.opts.MaxAge) {
		return urlcache.Entry{}, false
	}
	return entry, true
}

func (e *Expander) record(ctx context.Context, entry urlcache.Entry) {
	if e.store == nil {
		return
	}
	if err := e.store.Put(ctx, entry); err != nil {
		e.logger.Warn("url cache write failed", slog.String("url", entry.URL), slog.Any("error", err))
	}
}

func (e *Expander) attempt(ctx context.Context, h Handler, u *url.URL) (card.Card, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		c, err := e.call(ctx, h, u)
		if err == nil {
			return c, nil
		}
		if errors.Is(err, ErrNoMatch) || errors.Is(err, ErrNoPreview) {
			return card.Card{}, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return card.Card{}, lastErr
}

func (e *Expander) call(ctx context.Context, h Handler, u *url.URL) (card.Card, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Wait(callCtx); err != nil {
			return card.Card{}, err
		}
	}
	// Handlers get a copy so they cannot mutate the dedup key.
	clone := *u
	return h.Expand(callCtx, &clone)
}
