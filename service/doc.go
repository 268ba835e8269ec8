// Package service provides the service abstraction of the runtime and the
// Provider that registers services and their factories.
//
// # BaseService
//
// BaseService implements Service on top of a lifecycle.Engine. Concrete
// services embed it and pass their Hooks to NewBaseService:
//
//	type Relay struct {
//	    *service.BaseService
//	}
//
//	func NewRelay(cfg config.ServiceConfig, deps *service.Dependencies) (service.Service, error) {
//	    r := &Relay{}
//	    base, err := service.NewBaseService(cfg, deps, r)
//	    if err != nil {
//	        return nil, err
//	    }
//	    r.BaseService = base
//	    out := r.AddEndpoint("out", endpoint.WithDirection(endpoint.DirectionOut))
//	    r.AddEndpoint("in", endpoint.WithHandler(out.Send))
//	    return r, nil
//	}
//
//	func (r *Relay) OnStart(ctx context.Context) error { return nil }
//	func (r *Relay) OnStop(ctx context.Context) error  { return nil }
//
// Hooks may additionally implement Restarter, ActionHandler for custom
// actions, and Reconfigurable to receive their attributes.
//
// Every service has a UUID assigned at construction. Configure never replaces
// it: a declaration for an existing name reconfigures the service in place.
//
// # Attributes
//
// Configure validates attributes against JSON schemas. The built-in
// attributes autostart, logLevel, description and timeout are understood by
// every service; services declare their own with WithAttributeSchema.
// Rejected attributes are returned as errors.AttributeErrors while accepted
// ones stay applied.
//
// # Provider
//
// The Provider holds services by name and factories by type. Listeners added
// with Subscribe receive registration and state change events in
// subscription order. Starting the provider starts every autostart service
// concurrently and settles once all of them have settled.
package service
