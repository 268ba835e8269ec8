package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// stateValues maps lifecycle states to the numeric gauge value
var stateValues = map[string]float64{
	"stopped":    0,
	"starting":   1,
	"running":    2,
	"stopping":   3,
	"restarting": 4,
	"failed":     5,
}

// Metrics contains the runtime-level metrics shared by every service
type Metrics struct {
	// Lifecycle metrics
	ServiceState       *prometheus.GaugeVec
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Registry and resolution metrics
	RegistryEvents      *prometheus.CounterVec
	OutstandingRequests *prometheus.GaugeVec
	FactoryWaitTimeouts *prometheus.CounterVec
	UnresolvedEndpoints prometheus.Gauge
	DeclarationsTotal   *prometheus.CounterVec

	// Endpoint traffic
	EndpointMessages *prometheus.CounterVec

	// Command surface
	CommandsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all runtime metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "servicekit",
				Subsystem: "service",
				Name:      "state",
				Help:      "Service state (0=stopped, 1=starting, 2=running, 3=stopping, 4=restarting, 5=failed, -1=custom)",
			},
			[]string{"service"},
		),

		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servicekit",
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Total number of settled lifecycle transitions",
			},
			[]string{"service", "action", "outcome"},
		),

		TransitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "servicekit",
				Subsystem: "lifecycle",
				Name:      "transition_duration_seconds",
				Help:      "Time from hook invocation to settlement",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "action"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "servicekit",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		RegistryEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servicekit",
				Subsystem: "registry",
				Name:      "events_total",
				Help:      "Total number of registry events emitted",
			},
			[]string{"kind"},
		),

		OutstandingRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "servicekit",
				Subsystem: "resolve",
				Name:      "outstanding",
				Help:      "Pending resolution requests by kind",
			},
			[]string{"kind"},
		),

		FactoryWaitTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servicekit",
				Subsystem: "resolve",
				Name:      "factory_timeouts_total",
				Help:      "Total number of factory waits that expired",
			},
			[]string{"type"},
		),

		UnresolvedEndpoints: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "servicekit",
				Subsystem: "resolve",
				Name:      "unresolved_endpoints",
				Help:      "Out endpoints without a real connection at last validation",
			},
		),

		DeclarationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servicekit",
				Subsystem: "resolve",
				Name:      "declarations_total",
				Help:      "Total number of service declarations by outcome",
			},
			[]string{"outcome"},
		),

		EndpointMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servicekit",
				Subsystem: "endpoint",
				Name:      "messages_total",
				Help:      "Total number of endpoint messages by outcome",
			},
			[]string{"service", "endpoint", "outcome"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servicekit",
				Subsystem: "command",
				Name:      "requests_total",
				Help:      "Total number of administrative commands by transport and status",
			},
			[]string{"transport", "action", "status"},
		),
	}
}

// collectors lists every core metric for registration
func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ServiceState,
		c.TransitionsTotal,
		c.TransitionDuration,
		c.HealthCheckStatus,
		c.RegistryEvents,
		c.OutstandingRequests,
		c.FactoryWaitTimeouts,
		c.UnresolvedEndpoints,
		c.DeclarationsTotal,
		c.EndpointMessages,
		c.CommandsTotal,
	}
}

// RecordServiceState updates the service state gauge. Custom states report -1.
func (c *Metrics) RecordServiceState(service, state string) {
	value, ok := stateValues[state]
	if !ok {
		value = -1
	}
	c.ServiceState.WithLabelValues(service).Set(value)
}

// ForgetService drops the per-service series of an unregistered service
func (c *Metrics) ForgetService(service string) {
	c.ServiceState.DeleteLabelValues(service)
	c.HealthCheckStatus.DeleteLabelValues(service)
}

// RecordTransition counts a settled transition and observes its duration
func (c *Metrics) RecordTransition(service, action string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.TransitionsTotal.WithLabelValues(service, action, outcome).Inc()
	c.TransitionDuration.WithLabelValues(service, action).Observe(duration.Seconds())
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordRegistryEvent increments the registry event counter
func (c *Metrics) RecordRegistryEvent(kind string) {
	c.RegistryEvents.WithLabelValues(kind).Inc()
}

// RecordOutstanding sets the number of pending requests of one kind
func (c *Metrics) RecordOutstanding(kind string, count int) {
	c.OutstandingRequests.WithLabelValues(kind).Set(float64(count))
}

// RecordFactoryTimeout increments the factory wait timeout counter
func (c *Metrics) RecordFactoryTimeout(factoryType string) {
	c.FactoryWaitTimeouts.WithLabelValues(factoryType).Inc()
}

// RecordUnresolvedEndpoints sets the unresolved out endpoint gauge
func (c *Metrics) RecordUnresolvedEndpoints(count int) {
	c.UnresolvedEndpoints.Set(float64(count))
}

// RecordDeclaration counts a settled service declaration
func (c *Metrics) RecordDeclaration(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.DeclarationsTotal.WithLabelValues(outcome).Inc()
}

// RecordEndpointMessage counts one endpoint delivery outcome (delivered, dropped, failed)
func (c *Metrics) RecordEndpointMessage(service, endpoint, outcome string) {
	c.EndpointMessages.WithLabelValues(service, endpoint, outcome).Inc()
}

// RecordCommand counts one administrative command
func (c *Metrics) RecordCommand(transport, action, status string) {
	c.CommandsTotal.WithLabelValues(transport, action, status).Inc()
}
