package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/Kronos-Integration/service-sub000/builtin"
	"github.com/Kronos-Integration/service-sub000/command"
	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
	"github.com/Kronos-Integration/service-sub000/metric"
	"github.com/Kronos-Integration/service-sub000/natsclient"
	"github.com/Kronos-Integration/service-sub000/resolve"
	"github.com/Kronos-Integration/service-sub000/service"
)

// runtime owns every long-lived part of the process
type runtime struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	provider *service.Provider
	resolver *resolve.Context

	nats      *natsclient.Client
	responder *command.NATSResponder
	http      *command.HTTPServer
	watcher   *config.Watcher
}

// newRuntime creates the provider with the builtin factories and the
// resolution context on top of it
func newRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	registry := metric.NewMetricsRegistry()
	deps := &service.Dependencies{
		Logger:          logger,
		MetricsRegistry: registry,
	}

	provider, err := service.NewProvider(config.ServiceConfig{Name: appName}, deps)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	if err := builtin.Register(provider); err != nil {
		return nil, fmt.Errorf("register builtin factories: %w", err)
	}

	factories := provider.ServiceFactories()
	slog.Info("Service factories registered", "count", len(factories))

	return &runtime{
		logger:   logger,
		registry: registry,
		provider: provider,
		resolver: resolve.New(provider, deps,
			resolve.WithFactoryTimeout(cfg.FactoryTimeout()),
			resolve.WithLogger(logger)),
	}, nil
}

// start declares the configured services, starts the provider and opens the
// command surface. A non-nil loader enables configuration reloads.
func (rt *runtime) start(ctx context.Context, cfg *config.Config, loader *config.Loader) error {
	slog.Info("Declaring services", "count", len(cfg.Services))
	if err := rt.resolver.ApplyConfig(ctx, cfg); err != nil {
		return fmt.Errorf("declare services: %w", err)
	}

	if err := rt.provider.Start(ctx); err != nil {
		return fmt.Errorf("start provider: %w", err)
	}

	opts := []command.Option{
		command.WithLogger(rt.logger),
		command.WithMetrics(rt.registry),
	}
	if len(cfg.Admin.NATSURLs) > 0 {
		if err := rt.connectNATS(ctx, cfg.Admin.NATSURLs); err != nil {
			return err
		}
		opts = append(opts, command.WithHealthCheck(rt.nats.Health))
	}
	dispatcher := command.NewDispatcher(rt.provider, opts...)

	if rt.nats != nil {
		rt.responder = command.NewNATSResponder(rt.nats, cfg.Admin.CommandSubject, dispatcher, 0)
		if err := rt.responder.Start(); err != nil {
			return fmt.Errorf("start NATS command surface: %w", err)
		}
	}

	rt.http = command.NewHTTPServer(cfg.Admin.HTTPAddr, command.NewHTTPHandler(dispatcher, rt.registry), rt.logger)
	if err := rt.http.Start(); err != nil {
		return fmt.Errorf("start HTTP command surface: %w", err)
	}

	if loader != nil {
		rt.watcher = config.NewWatcher(loader, rt.resolver.ApplyConfig, rt.logger)
		if err := rt.watcher.Start(ctx); err != nil {
			return fmt.Errorf("watch configuration: %w", err)
		}
	}
	return nil
}

func (rt *runtime) connectNATS(ctx context.Context, urls []string) error {
	client, err := natsclient.NewClient(urls,
		natsclient.WithLogger(rt.logger),
		natsclient.WithName(appName))
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS")
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	rt.nats = client
	return nil
}

// shutdown closes the command surface first, then stops every service
func (rt *runtime) shutdown(ctx context.Context) error {
	var errs []error

	if rt.watcher != nil {
		if err := rt.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop config watcher: %w", err))
		}
	}
	if rt.http != nil {
		if err := rt.http.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.responder != nil {
		if err := rt.responder.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if rt.provider.State() != lifecycle.StateStopped {
		if err := rt.provider.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop services: %w", err))
		}
	}
	rt.resolver.Close()

	if rt.nats != nil {
		if err := rt.nats.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
