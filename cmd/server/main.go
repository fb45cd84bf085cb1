package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/bulk"
	"github.com/kitbuilder587/rankwatch/internal/config"
	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/httpapi"
	"github.com/kitbuilder587/rankwatch/internal/metrics"
	"github.com/kitbuilder587/rankwatch/internal/pool"
	"github.com/kitbuilder587/rankwatch/internal/ratelimit"
	"github.com/kitbuilder587/rankwatch/internal/repository/postgres"
	"github.com/kitbuilder587/rankwatch/internal/scheduler"
	"github.com/kitbuilder587/rankwatch/internal/serp"
	"github.com/kitbuilder587/rankwatch/internal/serp/customsearch"
	"github.com/kitbuilder587/rankwatch/internal/serp/nativeserp"
	"github.com/kitbuilder587/rankwatch/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()

	clients := map[domain.Provider]serp.Client{
		domain.ProviderNativeSERP: nativeserp.New(nativeserp.Config{
			BaseURL: cfg.Providers.NativeBaseURL,
			Timeout: cfg.Pool.RequestTimeout,
		}, logger),
		domain.ProviderCustomSearch: customsearch.New(customsearch.Config{
			BaseURL: cfg.Providers.CustomBaseURL,
			Timeout: cfg.Pool.RequestTimeout,
		}, logger),
	}

	seeds := make([]pool.Seed, 0, len(cfg.Pool.Entries))
	for _, e := range cfg.Pool.Entries {
		seeds = append(seeds, pool.Seed{
			Number:       e.Number,
			Provider:     e.Provider,
			Secret:       e.Secret,
			EngineID:     e.EngineID,
			DailyLimit:   e.DailyLimit,
			MonthlyLimit: e.MonthlyLimit,
		})
	}

	poolManager := pool.New(pool.Deps{
		Credentials: postgres.NewCredentialRepo(db),
		Rankings:    postgres.NewRankingRepo(db),
		Clients:     clients,
		Limiter: ratelimit.New(ratelimit.Config{
			Window: cfg.RateLimit.Window,
			Max:    cfg.RateLimit.Max,
		}),
		Logger:  logger,
		Metrics: m,
		Config: pool.Config{
			Seeds:          seeds,
			Strategy:       pool.Strategy(cfg.Pool.Strategy),
			RequestTimeout: cfg.Pool.RequestTimeout,
			MaxRetries:     cfg.Pool.MaxRetries,
			RateLimitPause: cfg.Pool.RateLimitPause,
		},
	})
	if err := poolManager.Init(ctx); err != nil {
		return err
	}

	executor := bulk.New(bulk.Deps{
		Tracker: poolManager,
		Logger:  logger,
		Metrics: m,
		Config: bulk.Config{
			BatchSize:       cfg.Bulk.BatchSize,
			InterBatchDelay: cfg.Bulk.InterBatchDelay,
			MaxConcurrent:   cfg.Bulk.MaxConcurrent,
			RetryEnabled:    cfg.Bulk.RetryEnabled,
			MaxRetries:      cfg.Bulk.MaxRetries,
			AdaptiveDelay:   cfg.Bulk.AdaptiveDelay,
			Budget:          cfg.Bulk.Budget,
		},
	})

	tracker := service.New(service.Deps{
		Pool:   poolManager,
		Bulk:   executor,
		Logger: logger,
	})

	sched := scheduler.New(poolManager, postgres.NewRankingRepo(db), logger, scheduler.Config{
		RetentionDays: cfg.Cleanup.RetentionDays,
	})
	sched.Start(ctx)

	handler := httpapi.NewHandler(tracker, poolManager, logger, cfg.HTTP.DevMode)
	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		BodyLimit:    cfg.HTTP.BodyLimit,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := poolManager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pool shutdown", zap.Error(err))
	}

	return nil
}
