package builtin

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kronos-Integration/service-sub000/service"
)

// serviceCounter creates a counter labelled with the service name and
// registers it for that service. The counter works unregistered when there
// is no registry or the name is taken by a service being replaced.
func serviceCounter(svc *service.BaseService, subsystem, name, help string) prometheus.Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "servicekit",
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": svc.Name()},
	})

	deps := svc.Dependencies()
	if deps == nil || deps.MetricsRegistry == nil {
		return counter
	}
	if err := deps.MetricsRegistry.RegisterCounter(svc.Name(), name, counter); err != nil {
		svc.Logger().Warn("Service metric not exported", "metric", name, "error", err)
	}
	return counter
}
