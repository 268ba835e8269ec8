package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// MetricsRegistrar defines the interface for registering service-specific metrics
type MetricsRegistrar interface {
	RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error
	RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error
	RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error
	Unregister(serviceName, metricName string) bool
}

// MetricsRegistry owns the Prometheus registry of the process: the core
// runtime metrics plus the metrics services register under their own name
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu       sync.Mutex
	services map[string]map[string]prometheus.Collector
}

// NewMetricsRegistry creates a new metrics registry with the core runtime metrics
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
		services:           make(map[string]map[string]prometheus.Collector),
	}

	registry.prometheusRegistry.MustRegister(registry.Metrics.collectors()...)
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core runtime metrics. A nil registry yields nil.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.Metrics
}

// Handler serves the registry in the Prometheus exposition format
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RegisterCounter registers a counter metric for a service
func (r *MetricsRegistry) RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", serviceName, metricName, counter)
}

// RegisterGauge registers a gauge metric for a service
func (r *MetricsRegistry) RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", serviceName, metricName, gauge)
}

// RegisterCounterVec registers a counter vector metric for a service
func (r *MetricsRegistry) RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", serviceName, metricName, counterVec)
}

func (r *MetricsRegistry) register(method, serviceName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := r.services[serviceName]
	if _, exists := owned[metricName]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metric %s already registered for service %s", errors.ErrInvalidConfig, metricName, serviceName),
			"MetricsRegistry", method, "duplicate check")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var conflict prometheus.AlreadyRegisteredError
		if stderrors.As(err, &conflict) {
			return errors.WrapInvalid(err, "MetricsRegistry", method, "register "+metricName)
		}
		return errors.WrapFatal(err, "MetricsRegistry", method, "register "+metricName)
	}

	if owned == nil {
		owned = make(map[string]prometheus.Collector)
		r.services[serviceName] = owned
	}
	owned[metricName] = collector
	return nil
}

// Unregister removes one metric of a service
func (r *MetricsRegistry) Unregister(serviceName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	collector, exists := r.services[serviceName][metricName]
	if !exists || !r.prometheusRegistry.Unregister(collector) {
		return false
	}
	delete(r.services[serviceName], metricName)
	if len(r.services[serviceName]) == 0 {
		delete(r.services, serviceName)
	}
	return true
}

// UnregisterService removes every metric a service registered and forgets
// its core series. It returns how many registered metrics were removed.
func (r *MetricsRegistry) UnregisterService(serviceName string) int {
	r.mu.Lock()
	owned := r.services[serviceName]
	delete(r.services, serviceName)
	r.mu.Unlock()

	removed := 0
	for _, collector := range owned {
		if r.prometheusRegistry.Unregister(collector) {
			removed++
		}
	}
	r.Metrics.ForgetService(serviceName)
	return removed
}
