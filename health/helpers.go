package health

import (
	"fmt"
	"sort"
	"time"
)

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    LevelHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    LevelUnhealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    LevelDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate combines sub-statuses into one. Any unhealthy sub-status makes
// the aggregate unhealthy; otherwise any degraded one makes it degraded.
// Sub-statuses are copied in component name order.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No services registered")
	}

	unhealthy, degraded := 0, 0
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy > 0:
		status = NewUnhealthy(component, fmt.Sprintf("%d of %d services unhealthy", unhealthy, len(subStatuses)))
	case degraded > 0:
		status = NewDegraded(component, fmt.Sprintf("%d of %d services degraded", degraded, len(subStatuses)))
	default:
		status = NewHealthy(component, "All services healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	sort.SliceStable(status.SubStatuses, func(i, j int) bool {
		return status.SubStatuses[i].Component < status.SubStatuses[j].Component
	})

	return status
}
