package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/forum/internal/config"
	"github.com/memohai/forum/internal/db"
	"github.com/memohai/forum/internal/handlers"
	"github.com/memohai/forum/internal/message"
	"github.com/memohai/forum/internal/metrics"
	"github.com/memohai/forum/internal/processor"
	"github.com/memohai/forum/internal/reprocess"
	"github.com/memohai/forum/internal/server"
	"github.com/memohai/forum/internal/smiley"
	"github.com/memohai/forum/internal/urlcache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	fx.New(
		fx.Provide(
			loadConfig,
			newLogger,
			provideDBConn,
			provideRegistry,
			provideMetrics,
			provideMessageStore,
			provideURLStore,
			provideSmileyMap,
			newExpander,
			newProcessor,
			provideSaver,
			provideMessageService,
			provideController,
			newCodec,
			provideServerHandler(provideHealthHandler),
			provideServerHandler(handlers.NewMessageHandler),
			provideServerHandler(handlers.NewSmileyHandler),
			provideServerHandler(handlers.NewBatchHandler),
			provideServerHandler(provideMetricsHandler),
			provideServer,
		),
		fx.Invoke(
			startSmileys,
			startURLPurger,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideMessageStore(pool *pgxpool.Pool) message.Store {
	return db.NewMessageStore(pool)
}

func provideURLStore(pool *pgxpool.Pool) urlcache.Store {
	return db.NewURLCacheStore(pool)
}

func provideSmileyMap(log *slog.Logger, pool *pgxpool.Pool) *smiley.Map {
	return smiley.NewMap(log, db.NewSmileyStore(pool))
}

func provideSaver(log *slog.Logger, cfg config.Config, store message.Store, m *metrics.Metrics) *message.RetryingSaver {
	return newSaver(log, cfg, store, m)
}

func provideMessageService(log *slog.Logger, store message.Store, saver *message.RetryingSaver, proc *processor.Processor) *message.Service {
	return message.NewService(log, store, saver, proc)
}

func provideController(log *slog.Logger, cfg config.Config, store message.Store, saver *message.RetryingSaver, proc *processor.Processor, m *metrics.Metrics) *reprocess.Controller {
	return reprocess.NewController(log, store, saver, proc, cfg.Batch.PageSize, m)
}

func provideHealthHandler(log *slog.Logger, pool *pgxpool.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log, pool)
}

func provideMetricsHandler(reg *prometheus.Registry) *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(reg)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func startSmileys(lc fx.Lifecycle, logger *slog.Logger, smileys *smiley.Map) {
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		if err := smileys.Reload(ctx); err != nil {
			logger.Warn("smiley load failed, serving without smileys", slog.Any("error", err))
		}
		return nil
	}})
}

func startURLPurger(lc fx.Lifecycle, logger *slog.Logger, cfg config.Config, store urlcache.Store) error {
	d, err := cfg.Embed.Durations()
	if err != nil {
		return err
	}
	purger := urlcache.NewPurger(logger, store, d.FailureCooldown)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return purger.Start(cfg.Embed.PurgeSchedule) },
		OnStop:  func(ctx context.Context) error { purger.Stop(); return nil },
	})
	return nil
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
