package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vip-entitlement/internal/infra/metrics"
	"vip-entitlement/internal/infra/redis"
)

const sweepLockKey = "lock:expiry_sweeper"

// Sweeper is the part of the entitlement use case the worker drives.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ExpirySweeper periodically deletes redemption codes past their redeem
// window. Correctness does not depend on it: redeem rejects expired codes
// whether or not they have been swept.
type ExpirySweeper struct {
	interval time.Duration
	timeout  time.Duration
	lockTTL  time.Duration
	sweeper  Sweeper
	locker   redis.Locker // nil when running a single replica
	log      *zerolog.Logger
}

func NewExpirySweeper(interval, lockTTL time.Duration, sweeper Sweeper, locker redis.Locker, logger *zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	l := logger.With().Str("component", "ExpirySweeper").Logger()
	return &ExpirySweeper{
		interval: interval,
		timeout:  lockTTL,
		lockTTL:  lockTTL,
		sweeper:  sweeper,
		locker:   locker,
		log:      &l,
	}
}

// Run sweeps once immediately, then every interval until ctx is cancelled.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		_, _ = w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry sweeper")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single bounded sweep. When a locker is configured and
// another replica holds the lock, the run is skipped.
func (w *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	if w.locker != nil {
		token, ok, err := w.locker.TryLock(ctx, sweepLockKey, w.lockTTL)
		if err != nil {
			metrics.IncSweepRun("error")
			w.log.Error().Err(err).Msg("sweeper lock failed")
			return 0, err
		}
		if !ok {
			metrics.IncSweepRun("skipped")
			w.log.Debug().Msg("sweep already running elsewhere")
			return 0, nil
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("sweeper unlock failed")
			}
		}()
	}

	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := w.sweeper.SweepExpired(runCtx)
	if n > 0 {
		metrics.IncCodesSwept(n)
	}
	if err != nil {
		metrics.IncSweepRun("error")
		w.log.Error().Err(err).Int("removed", n).Msg("expiry sweep error")
		return n, err
	}
	metrics.IncSweepRun("ok")
	w.log.Info().Int("removed", n).Dur("took", time.Since(start)).Msg("expired redemption codes swept")
	return n, nil
}
