// Command seed registers demo accounts and mints one code per issuer so a
// local instance has something to redeem.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"vip-entitlement/internal/application"
	"vip-entitlement/internal/config"
	"vip-entitlement/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	accounts := flag.String("accounts", "alice,bob,carol", "comma separated account ids to register")
	days := flag.Int("days", 7, "grant duration of the seeded codes")
	uses := flag.Int("uses", 3, "max uses of the seeded codes")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	for _, id := range strings.Split(*accounts, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := app.Engine.EnsureAccount(ctx, id); err != nil {
			logger.Fatal().Err(err).Str("account", id).Msg("ensure account")
		}
		code, err := app.Engine.Mint(ctx, id, *days, *uses)
		if err != nil {
			logger.Warn().Err(err).Str("account", id).Msg("mint skipped")
			continue
		}
		fmt.Printf("  - %s: %s (days=%d, uses=%d, expires %s)\n", id, code.Code, *days, *uses, code.ExpiresAt.Format(time.RFC3339))
	}
}
