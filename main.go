package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sqlrestore/cmd"
	"sqlrestore/internal/config"
	"sqlrestore/internal/logger"
)

// Build information (set by ldflags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.New()
	cfg.Version = version
	cfg.BuildTime = buildTime
	cfg.GitCommit = gitCommit

	telemetry, err := config.LoadTelemetryConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry configuration: %v\n", err)
		os.Exit(2)
	}
	cfg.Telemetry = telemetry

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}

	log := logger.New(level, cfg.LogFormat)
	if cfg.LogFile != "" {
		fileLog, err := logger.FileLogger(level, cfg.LogFormat, logger.FileOptions{Filename: cfg.LogFile, MaxBackups: 5, Compress: true})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(2)
		}
		log = fileLog
	}

	if err := cmd.Execute(ctx, cfg, log); err != nil {
		log.Error("Application failed", "error", err)
		cancel()
		os.Exit(cmd.ExitCode(err))
	}
}
