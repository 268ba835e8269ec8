// Package main implements the servicekit binary: it declares the services of
// a configuration file, starts them and serves the administrative command
// surface over HTTP and, when configured, NATS.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/Kronos-Integration/service-sub000/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "servicekit"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, debug.Stack())
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	loader, cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "services", len(cfg.Services))
		return nil
	}

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}

	if !cliCfg.Watch {
		loader = nil
	}
	return runWithSignalHandling(context.Background(), rt, cfg, loader, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, *slog.Logger, bool, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if stderrors.Is(err, flag.ErrHelp) {
		return nil, nil, true, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(os.Stderr, fs)
		return nil, nil, true, nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting servicekit",
		"version", Version,
		"build_time", BuildTime,
		"config_paths", cliCfg.ConfigPaths)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads every layer, applies flag overrides and
// validates the result
func initializeConfiguration(cliCfg *CLIConfig) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cliCfg.ConfigPaths {
		loader.AddLayer(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.HTTPAddr != "" {
		cfg.Admin.HTTPAddr = cliCfg.HTTPAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

// runWithSignalHandling starts the runtime and shuts it down on SIGINT or
// SIGTERM
func runWithSignalHandling(
	ctx context.Context,
	rt *runtime,
	cfg *config.Config,
	loader *config.Loader,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := rt.start(signalCtx, cfg, loader); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return stderrors.Join(err, rt.shutdown(shutdownCtx))
	}
	slog.Info("servicekit started", "services", len(rt.provider.Services()), "http_addr", rt.http.Addr())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := rt.shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("servicekit shutdown complete")
	return nil
}
