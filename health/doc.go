// Package health reports service and runtime health with a three-level model:
// healthy, degraded and unhealthy.
//
// A service's health is derived from its lifecycle state with FromState:
// running services are healthy, services in a transitional or custom state
// are degraded, stopped and failed services are unhealthy. Error text attached
// to a status is sanitized so URLs, paths, addresses and credentials never
// leave the process through the command surface.
//
// The Monitor keeps the latest status per service name and aggregates them:
//
//	monitor := health.NewMonitor()
//	monitor.Update("ticker", health.FromState("ticker", "running", nil))
//	monitor.Update("relay", health.FromState("relay", "failed", err))
//
//	overall := monitor.AggregateHealth("servicekit", ownStatus)
//	// overall.IsUnhealthy() == true, overall.SubStatuses sorted by name
//
// Aggregation rules: any unhealthy sub-status makes the aggregate unhealthy,
// otherwise any degraded sub-status makes it degraded, otherwise healthy.
package health
