package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"shuttle/internal/config"
	"shuttle/internal/daemon"
	"shuttle/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Optional .env for API keys; missing files are fine.
	_ = godotenv.Load()

	cfg, configPath, found, err := config.Load(os.Getenv("SHUTTLE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "shuttled.log")
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	if found {
		logger.Info("configuration loaded", logging.String("path", configPath))
	} else {
		logger.Warn("no configuration file found, using defaults",
			logging.String("path", configPath),
		)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited", logging.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("shuttled shut down")
}
