// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vip-entitlement/internal/application"
	"vip-entitlement/internal/config"
	"vip-entitlement/internal/infra/api"
	pg "vip-entitlement/internal/infra/db/postgres"
	"vip-entitlement/internal/infra/logging"
	"vip-entitlement/internal/infra/metrics"
	"vip-entitlement/internal/infra/sched"
	"vip-entitlement/internal/infra/tracing"
)

var version = "dev"

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted codes)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Tracing ----
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// ---- Store, redis, engine ----
	app, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, cfg.Database.Driver)

	// ---- HTTP ----
	var limiter api.Limiter
	if app.RedeemLimiter != nil {
		limiter = app.RedeemLimiter
	}
	srv := api.NewServer(app.Engine, limiter, api.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		AdminAPIKey:    cfg.Auth.AdminAPIKey,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Str("driver", cfg.Database.Driver).Str("version", version).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	// ---- Expiry sweeper ----
	if cfg.Sweeper.Enabled {
		sweeper := sched.NewExpirySweeper(cfg.Sweeper.Interval, cfg.Sweeper.LockTTL, app.Engine, app.Locker, logger)
		g.Go(func() error {
			if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if app.Pool != nil {
		g.Go(func() error {
			pg.ReportPoolStats(gctx, app.Pool, 15*time.Second, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		return
	}
	logger.Info().Msg("shutdown complete")
}
