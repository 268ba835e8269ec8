package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/health"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
)

// ProviderType is the service type of a Provider
const ProviderType = "provider"

// EventKind identifies a registry notification
type EventKind string

// Registry notifications
const (
	EventServiceRegistered            EventKind = "service-registered"
	EventServiceUnregistered          EventKind = "service-unregistered"
	EventFactoryRegistered            EventKind = "factory-registered"
	EventInterceptorFactoryRegistered EventKind = "interceptor-factory-registered"
	EventStateChanged                 EventKind = "state-changed"
)

// Event is delivered to registry listeners. Name holds the service name or
// the factory type.
type Event struct {
	Kind               EventKind
	Name               string
	Service            Service
	Factory            *Factory
	InterceptorFactory *InterceptorFactory
	Old                lifecycle.State
	New                lifecycle.State
}

type registration struct {
	service Service
	cancel  func()
}

type eventListener struct {
	token uint64
	fn    func(Event)
}

// Provider is the service registry. It holds named services and the
// factories that create them, and it is a service itself: starting it starts
// every autostart service, stopping it stops every running one.
type Provider struct {
	*BaseService

	monitor *health.Monitor

	mu           sync.RWMutex
	services     map[string]*registration
	factories    map[string]*Factory
	interceptors map[string]*InterceptorFactory

	listenersMu sync.Mutex
	listeners   []eventListener
	nextToken   uint64
}

// NewProvider creates a stopped provider. An empty name defaults to the
// provider type.
func NewProvider(cfg config.ServiceConfig, deps *Dependencies, opts ...Option) (*Provider, error) {
	if cfg.Name == "" {
		cfg.Name = ProviderType
	}
	cfg.Type = ProviderType

	p := &Provider{
		monitor:      health.NewMonitor(),
		services:     make(map[string]*registration),
		factories:    make(map[string]*Factory),
		interceptors: make(map[string]*InterceptorFactory),
	}

	base, err := NewBaseService(cfg, deps, p, opts...)
	if err != nil {
		return nil, err
	}
	p.BaseService = base
	return p, nil
}

// OnStart starts every registered autostart service concurrently and waits
// for all of them to settle. Failures are reported per service and do not
// fail the provider.
func (p *Provider) OnStart(ctx context.Context) error {
	var g errgroup.Group
	for _, svc := range p.Services() {
		if !svc.Autostart() || svc.State() != lifecycle.StateStopped {
			continue
		}
		g.Go(func() error {
			if err := svc.Start(ctx); err != nil {
				p.logger.Error("Autostart failed", "target", svc.Name(), "error", err)
				return nil
			}
			p.logger.Debug("Autostarted service", "target", svc.Name())
			return nil
		})
	}
	return g.Wait()
}

// OnStop stops every service that is not stopped yet, concurrently
func (p *Provider) OnStop(ctx context.Context) error {
	var g errgroup.Group
	for _, svc := range p.Services() {
		if svc.State() == lifecycle.StateStopped {
			continue
		}
		g.Go(func() error {
			p.stopService(ctx, svc)
			return nil
		})
	}
	return g.Wait()
}

// Subscribe registers fn for every registry event. Listeners are called
// synchronously in subscription order.
func (p *Provider) Subscribe(fn func(Event)) (unsubscribe func()) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()

	p.nextToken++
	token := p.nextToken
	p.listeners = append(p.listeners, eventListener{token: token, fn: fn})

	return func() {
		p.listenersMu.Lock()
		defer p.listenersMu.Unlock()
		p.listeners = slices.DeleteFunc(p.listeners, func(l eventListener) bool {
			return l.token == token
		})
	}
}

func (p *Provider) emit(ev Event) {
	p.listenersMu.Lock()
	listeners := slices.Clone(p.listeners)
	p.listenersMu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordRegistryEvent(string(ev.Kind))
	}
	for _, l := range listeners {
		l.fn(ev)
	}
}

// RegisterServiceFactory makes a service type available. Registering a type
// again replaces the factory.
func (p *Provider) RegisterServiceFactory(f *Factory) error {
	if err := f.Validate(); err != nil {
		return errors.Wrap(err, p.name, "RegisterServiceFactory", "factory validation")
	}

	p.mu.Lock()
	p.factories[f.Type] = f
	p.mu.Unlock()

	p.logger.Debug("Service factory registered", "factory", f.Type)
	p.emit(Event{Kind: EventFactoryRegistered, Name: f.Type, Factory: f})
	return nil
}

// ServiceFactory looks up a factory by type
func (p *Provider) ServiceFactory(typ string) (*Factory, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.factories[typ]
	return f, ok
}

// ServiceFactories returns the registered factories sorted by type
func (p *Provider) ServiceFactories() []*Factory {
	p.mu.RLock()
	defer p.mu.RUnlock()

	factories := make([]*Factory, 0, len(p.factories))
	for _, typ := range slices.Sorted(maps.Keys(p.factories)) {
		factories = append(factories, p.factories[typ])
	}
	return factories
}

// RegisterInterceptorFactory makes an interceptor type available
func (p *Provider) RegisterInterceptorFactory(f *InterceptorFactory) error {
	if err := f.Validate(); err != nil {
		return errors.Wrap(err, p.name, "RegisterInterceptorFactory", "factory validation")
	}

	p.mu.Lock()
	p.interceptors[f.Type] = f
	p.mu.Unlock()

	p.logger.Debug("Interceptor factory registered", "factory", f.Type)
	p.emit(Event{Kind: EventInterceptorFactoryRegistered, Name: f.Type, InterceptorFactory: f})
	return nil
}

// InterceptorFactory looks up an interceptor factory by type
func (p *Provider) InterceptorFactory(typ string) (*InterceptorFactory, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.interceptors[typ]
	return f, ok
}

// RegisterService inserts svc by name. A previous holder of the name is
// stopped and unregistered first. While the provider is running an
// autostart service is started right away.
func (p *Provider) RegisterService(ctx context.Context, svc Service) error {
	if svc == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, p.name, "RegisterService", "nil service check")
	}
	name := svc.Name()

	p.mu.Lock()
	previous := p.services[name]
	if previous != nil && previous.service == svc {
		p.mu.Unlock()
		return nil
	}
	reg := &registration{service: svc}
	reg.cancel = svc.OnStateChange(func(old, current lifecycle.State) {
		p.stateChanged(svc, old, current)
	})
	p.services[name] = reg
	p.mu.Unlock()

	if previous != nil {
		p.logger.Info("Replacing service", "target", name,
			"old_id", previous.service.ID(), "new_id", svc.ID())
		p.retire(ctx, previous)
	}

	p.monitor.Update(name, svc.Health())
	if p.metrics != nil {
		p.metrics.RecordServiceState(name, svc.State().String())
	}
	p.logger.Info("Service registered", "target", name, "target_type", svc.Type())
	p.emit(Event{Kind: EventServiceRegistered, Name: name, Service: svc})

	if p.State() == lifecycle.StateRunning && svc.Autostart() && svc.State() == lifecycle.StateStopped {
		if err := svc.Start(ctx); err != nil {
			return errors.Wrap(err, p.name, "RegisterService", "autostart of "+name)
		}
	}
	return nil
}

// UnregisterService stops the named service and removes it
func (p *Provider) UnregisterService(ctx context.Context, name string) error {
	p.mu.Lock()
	reg, exists := p.services[name]
	if exists {
		delete(p.services, name)
	}
	p.mu.Unlock()

	if !exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownService, name),
			p.name, "UnregisterService", "service lookup")
	}

	p.retire(ctx, reg)
	return nil
}

// retire stops a service that left the registry, closes its endpoints and
// announces it
func (p *Provider) retire(ctx context.Context, reg *registration) {
	p.stopService(ctx, reg.service)
	reg.cancel()
	for _, ep := range reg.service.Endpoints() {
		ep.Close()
	}

	name := reg.service.Name()
	if _, replaced := p.Service(name); !replaced {
		p.monitor.Remove(name)
		if p.deps != nil && p.deps.MetricsRegistry != nil {
			p.deps.MetricsRegistry.UnregisterService(name)
		}
	}

	p.logger.Info("Service unregistered", "target", name, "target_id", reg.service.ID())
	p.emit(Event{Kind: EventServiceUnregistered, Name: name, Service: reg.service})
}

// stopService brings svc to stopped. A stop may join a start still in
// flight, so a second attempt covers a service that ended up running.
func (p *Provider) stopService(ctx context.Context, svc Service) {
	for range 2 {
		if svc.State() == lifecycle.StateStopped {
			return
		}
		err := svc.Stop(ctx)
		if err == nil {
			continue
		}
		if stderrors.Is(err, errors.ErrIllegalTransition) || ctx.Err() != nil {
			p.logger.Warn("Service not stopped", "target", svc.Name(), "state", svc.State(), "error", err)
			return
		}
		p.logger.Error("Stopping service failed", "target", svc.Name(), "error", err)
	}
}

func (p *Provider) stateChanged(svc Service, old, current lifecycle.State) {
	if registered, ok := p.Service(svc.Name()); ok && registered == svc {
		p.monitor.Update(svc.Name(), svc.Health())
	}
	p.emit(Event{Kind: EventStateChanged, Name: svc.Name(), Service: svc, Old: old, New: current})
}

// Service looks up a registered service by name
func (p *Provider) Service(name string) (Service, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	reg, ok := p.services[name]
	if !ok {
		return nil, false
	}
	return reg.service, true
}

// Services returns the registered services sorted by name
func (p *Provider) Services() []Service {
	p.mu.RLock()
	defer p.mu.RUnlock()

	services := make([]Service, 0, len(p.services))
	for _, name := range slices.Sorted(maps.Keys(p.services)) {
		services = append(services, p.services[name].service)
	}
	return services
}

// SystemHealth aggregates the provider and every registered service
func (p *Provider) SystemHealth() health.Status {
	return p.monitor.AggregateHealth(p.name, p.Health())
}
