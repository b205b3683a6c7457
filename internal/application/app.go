// Package application assembles the entitlement engine and its
// infrastructure from configuration. Every binary builds through here.
package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"vip-entitlement/internal/config"
	"vip-entitlement/internal/domain/policy"
	"vip-entitlement/internal/domain/ports/repository"
	pg "vip-entitlement/internal/infra/db/postgres"
	"vip-entitlement/internal/infra/db/sqlite"
	red "vip-entitlement/internal/infra/redis"
	"vip-entitlement/internal/usecase"
)

// App holds the wired engine plus the optional infrastructure around it.
type App struct {
	Engine *usecase.EntitlementUseCase

	// Pool is set for the postgres driver only.
	Pool *pgxpool.Pool
	// Redis, Locker and RedeemLimiter are nil when redis is not configured.
	Redis         *red.Client
	Locker        red.Locker
	RedeemLimiter *red.RateLimiter

	closers []func() error
}

// Build opens the configured store and redis (if any) and wires the engine.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	app := &App{}

	var (
		codes    repository.RedemptionCodeRepository
		accounts repository.AccountRepository
		tm       repository.TransactionManager
	)
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		app.Pool = pool
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		codes, accounts, tm = pg.NewRedemptionCodeRepo(pool), pg.NewAccountRepo(pool), pg.NewTxManager(pool)
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		app.closers = append(app.closers, db.Close)
		codes, accounts, tm = sqlite.NewRedemptionCodeRepo(db), sqlite.NewAccountRepo(db), sqlite.NewTxManager(db)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	var guard usecase.MintGuard = usecase.NoopMintGuard{}
	if cfg.Redis.Enabled() {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.Redis = rc
		app.closers = append(app.closers, rc.Close)
		app.Locker = red.NewLocker(rc)
		app.RedeemLimiter = red.NewRateLimiter(rc, cfg.Entitlement.RedeemRateLimit, cfg.Entitlement.RedeemRateWindow)
		if cfg.Entitlement.MintCooldown > 0 {
			guard = red.NewMintCooldown(rc, cfg.Entitlement.MintCooldown)
		}
	} else if cfg.Entitlement.MintCooldown > 0 {
		logger.Warn().Msg("entitlement.mint_cooldown is set but redis is not configured; cooldown disabled")
	}

	app.Engine = usecase.NewEntitlementUseCase(
		codes, accounts, tm,
		usecase.NewCodeGenerator(cfg.Entitlement.CodeLength, cfg.Entitlement.GenerateAttempts),
		guard,
		policy.SystemClock{},
		usecase.EntitlementOptions{
			CodeTTL:         cfg.Entitlement.CodeTTL,
			MaxDurationDays: cfg.Entitlement.MaxDurationDays,
			MaxUsesLimit:    cfg.Entitlement.MaxUsesLimit,
			RedeemRetries:   cfg.Entitlement.RedeemRetries,
			SweepBatchSize:  cfg.Sweeper.BatchSize,
			Dev:             cfg.Runtime.Dev,
		},
		logger,
	)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
