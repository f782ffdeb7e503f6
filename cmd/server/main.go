// TravelProof - payment-authorization risk decisions for travelling cardholders
package main

import (
	"context"
	"os"

	"github.com/jaineelmodi11/KingsHacks/internal/config"
	"github.com/jaineelmodi11/KingsHacks/internal/logging"
	"github.com/jaineelmodi11/KingsHacks/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting travelproof",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"remote_factstore", cfg.UseRemoteFactstore(),
		"postgres", cfg.DatabaseURL != "",
		"strict_challenges", cfg.StrictChallenges,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
