package service

import (
	"context"
	"time"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/health"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
)

// Service is a named unit whose lifecycle is driven by its own transition
// engine. Implementations embed *BaseService.
type Service interface {
	ID() string
	Name() string
	Type() string
	State() lifecycle.State
	Autostart() bool

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Perform(ctx context.Context, action lifecycle.Action) error

	// Configure applies a declaration in place. Rejected attributes are
	// reported as errors.AttributeErrors; the accepted ones stay applied.
	Configure(cfg config.ServiceConfig) error

	Endpoint(name string) (*endpoint.Endpoint, bool)
	Endpoints() []*endpoint.Endpoint
	AddEndpoint(name string, opts ...endpoint.Option) *endpoint.Endpoint
	RemoveEndpoint(name string) bool
	ValidateEndpoints() []error

	Attributes() map[string]any
	Health() health.Status
	Info() Info

	// OnStateChange registers fn for every state change and returns a
	// function that removes it
	OnStateChange(fn func(old, current lifecycle.State)) (cancel func())
}

// Info holds runtime information for a service
type Info struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	State       lifecycle.State `json:"state"`
	Autostart   bool            `json:"autostart"`
	Description string          `json:"description,omitempty"`
	Uptime      time.Duration   `json:"uptime"`
	StartTime   time.Time       `json:"start_time"`
	LastError   string          `json:"last_error,omitempty"`
	Endpoints   []EndpointInfo  `json:"endpoints"`
	Attributes  map[string]any  `json:"attributes,omitempty"`
}

// EndpointInfo describes one endpoint of a service
type EndpointInfo struct {
	Name        string             `json:"name"`
	Direction   endpoint.Direction `json:"direction"`
	Default     bool               `json:"default,omitempty"`
	Single      bool               `json:"single,omitempty"`
	Open        bool               `json:"open"`
	Connections []string           `json:"connections,omitempty"`
	Pending     bool               `json:"pending,omitempty"`
	Stats       endpoint.Stats     `json:"stats"`
}

func describeEndpoint(ep *endpoint.Endpoint) EndpointInfo {
	info := EndpointInfo{
		Name:      ep.Name(),
		Direction: ep.Direction(),
		Default:   ep.IsDefault(),
		Single:    ep.IsSingle(),
		Open:      ep.IsOpen(),
		Stats:     ep.Stats(),
	}
	for _, conn := range ep.Connections() {
		if conn.IsPlaceholder() {
			info.Pending = true
			continue
		}
		info.Connections = append(info.Connections, conn.Identifier())
	}
	return info
}
