// Command sweep deletes expired redemption codes once and exits. It is meant
// for cron-style deployments where the in-process sweeper is disabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vip-entitlement/internal/application"
	"vip-entitlement/internal/config"
	"vip-entitlement/internal/infra/logging"
	"vip-entitlement/internal/infra/sched"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	n, err := sched.NewExpirySweeper(cfg.Sweeper.Interval, cfg.Sweeper.LockTTL, app.Engine, app.Locker, logger).RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Int("removed", n).Msg("sweep failed")
		app.Close()
		os.Exit(1)
	}
	fmt.Printf("removed %d expired codes\n", n)
}
