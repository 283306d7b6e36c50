package urlcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger drops failed entries once their cooldown has passed so the table
// does not grow with dead links.
type Purger struct {
	store    Store
	cooldown time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

func NewPurger(log *slog.Logger, store Store, cooldown time.Duration) *Purger {
	if log == nil {
		log = slog.Default()
	}
	return &Purger{
		store:    store,
		cooldown: cooldown,
		logger:   log.With(slog.String("service", "urlcache_purge")),
		cron:     cron.New(),
		now:      time.Now,
	}
}

// RunOnce purges expired failures and returns how many were removed.
func (p *Purger) RunOnce(ctx context.Context) (int, error) {
	n, err := p.store.PurgeFailed(ctx, p.now().Add(-p.cooldown))
	if err != nil {
		return 0, fmt.Errorf("purge failed url entries: %w", err)
	}
	if n > 0 {
		p.logger.Info("purged failed url entries", slog.Int("count", n))
	}
	return n, nil
}

// Start schedules RunOnce with a cron spec such as "@hourly".
func (p *Purger) Start(spec string) error {
	if _, err := p.cron.AddFunc(spec, func() {
		if _, err := p.RunOnce(context.Background()); err != nil {
			p.logger.Warn("url entry purge failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule url purge %q: %w", spec, err)
	}
	p.cron.Start()
	return nil
}

// Stop waits for a running purge to finish.
func (p *Purger) Stop() {
	<-p.cron.Stop().Done()
}
