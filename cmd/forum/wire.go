package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/memohai/forum/internal/config"
	"github.com/memohai/forum/internal/db"
	"github.com/memohai/forum/internal/embed"
	"github.com/memohai/forum/internal/logger"
	"github.com/memohai/forum/internal/message"
	"github.com/memohai/forum/internal/metrics"
	"github.com/memohai/forum/internal/processor"
	"github.com/memohai/forum/internal/reprocess"
	"github.com/memohai/forum/internal/smiley"
	"github.com/memohai/forum/internal/urlcache"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func newExpander(log *slog.Logger, cfg config.Config, store urlcache.Store, m *metrics.Metrics) (*embed.Expander, error) {
	d, err := cfg.Embed.Durations()
	if err != nil {
		return nil, err
	}
	registry := embed.NewStandardRegistry(embed.StandardConfig{
		UserAgent:     cfg.Embed.UserAgent,
		ImgurClientID: cfg.Embed.ImgurClientID,
		ImgurAPIBase:  cfg.Embed.ImgurAPIBase,
		YouTubeOEmbed: cfg.Embed.YouTubeOEmbed,
	})
	var limiter *rate.Limiter
	if cfg.Embed.FetchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Embed.FetchRate), max(cfg.Embed.FetchBurst, 1))
	}
	log.Info("link handlers registered", slog.Any("handlers", registry.Names()))
	return embed.NewExpander(log, registry, store, embed.Options{
		Timeout:  d.HandlerTimeout,
		Cooldown: d.FailureCooldown,
		MaxAge:   d.MaxAge,
		Limiter:  limiter,
		Metrics:  m,
	}), nil
}

func newProcessor(log *slog.Logger, cfg config.Config, smileys *smiley.Map, expander *embed.Expander) *processor.Processor {
	return processor.New(log, smileys, expander, processor.Limits{
		MaxBodyRunes:      cfg.Processing.MaxBodyRunes,
		ShortPreviewRunes: cfg.Processing.ShortPreviewRunes,
		LongPreviewRunes:  cfg.Processing.LongPreviewRunes,
	})
}

func newSaver(log *slog.Logger, cfg config.Config, store message.Store, m *metrics.Metrics) *message.RetryingSaver {
	return message.NewRetryingSaver(log, store, cfg.Batch.SaveRetries, m)
}

// newCodec signs continuation tokens. Without a configured secret a random
// one is used and tokens do not survive a restart.
func newCodec(log *slog.Logger, cfg config.Config) (*reprocess.Codec, error) {
	secret := []byte(cfg.Batch.StateSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate state secret: %w", err)
		}
		log.Warn("batch.state_secret is empty; continuation tokens are valid for this process only")
	}
	return reprocess.NewCodec(secret)
}

// pipeline is the processing graph used by the one-shot commands.
type pipeline struct {
	pool       *pgxpool.Pool
	store      message.Store
	controller *reprocess.Controller
	logger     *slog.Logger
}

func newPipeline(ctx context.Context, cfg config.Config, log *slog.Logger) (*pipeline, error) {
	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	smileys := smiley.NewMap(log, db.NewSmileyStore(pool))
	if err := smileys.Reload(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	expander, err := newExpander(log, cfg, db.NewURLCacheStore(pool), nil)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store := db.NewMessageStore(pool)
	proc := newProcessor(log, cfg, smileys, expander)
	controller := reprocess.NewController(log, store, newSaver(log, cfg, store, nil), proc, cfg.Batch.PageSize, nil)
	return &pipeline{pool: pool, store: store, controller: controller, logger: log}, nil
}

func (p *pipeline) Close() { p.pool.Close() }
