package service

import (
	"log/slog"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/metric"
)

// Connector wires an endpoint to a target expression, an endpoint or a
// collection of either, and forgets the wiring of endpoints that are
// removed. The resolution context implements it.
type Connector interface {
	ConnectEndpoint(ep *endpoint.Endpoint, target any) error
	Disconnect(ep *endpoint.Endpoint)
}

// InterceptorSource looks up interceptor factories by type
type InterceptorSource interface {
	InterceptorFactory(typ string) (*InterceptorFactory, bool)
}

// Dependencies provides the standard dependencies that all services receive
type Dependencies struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	Connector       Connector
	Interceptors    InterceptorSource
}

// Constructor defines the standard constructor signature for all services.
// The returned service is configured with cfg by the caller right after
// construction, so constructors only create what Configure cannot.
type Constructor func(cfg config.ServiceConfig, deps *Dependencies) (Service, error)

func (d *Dependencies) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Dependencies) metrics() *metric.Metrics {
	if d == nil {
		return nil
	}
	return d.MetricsRegistry.CoreMetrics()
}
