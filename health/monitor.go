package health

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Monitor keeps the latest status per service. The registry feeds it from
// state change events so the command surface can answer without locking
// every service.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update stores the status of a named service. The component is always the
// service name.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.statuses[name] = status
	m.mu.Unlock()
}

// Remove stops tracking a service
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.statuses, name)
	m.mu.Unlock()
}

// All returns a copy of the current statuses by service name
func (m *Monitor) All() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.statuses)
}

// AggregateHealth aggregates every tracked service plus extra, typically
// the status of the owner itself
func (m *Monitor) AggregateHealth(systemName string, extra ...Status) Status {
	m.mu.RLock()
	statuses := append(slices.Clone(extra), slices.Collect(maps.Values(m.statuses))...)
	m.mu.RUnlock()

	return Aggregate(systemName, statuses)
}
