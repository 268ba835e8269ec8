package resolve

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/metric"
	"github.com/Kronos-Integration/service-sub000/service"
)

// DefaultFactoryTimeout bounds the wait for a service factory
const DefaultFactoryTimeout = 10 * time.Second

// Outstanding is a snapshot of the pending resolution work
type Outstanding struct {
	Declarations        int `json:"declarations"`
	FactoryWaits        int `json:"factory_waits"`
	EndpointConnections int `json:"endpoint_connections"`
}

// Option configures a Context
type Option func(*Context)

// WithFactoryTimeout sets how long a declaration waits for its factory.
// Non-positive values select DefaultFactoryTimeout.
func WithFactoryTimeout(timeout time.Duration) Option {
	return func(c *Context) {
		if timeout > 0 {
			c.factoryTimeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// factoryWait is the shared handle of every declaration waiting for one type
type factoryWait struct {
	done    chan struct{}
	timer   *time.Timer
	factory *service.Factory
	err     error
}

// pendingConnection is an endpoint connection whose target is not resolvable yet
type pendingConnection struct {
	ep     *endpoint.Endpoint
	target endpoint.Expression
}

// Context declares services and wires endpoints against a Provider, deferring
// whatever depends on factories, services or endpoints that do not exist yet.
type Context struct {
	provider       *service.Provider
	deps           *service.Dependencies
	logger         *slog.Logger
	metrics        *metric.Metrics
	factoryTimeout time.Duration

	declarations singleflight.Group

	mu          sync.Mutex
	declaring   map[string]int
	waits       map[string]*factoryWait
	pending     []*pendingConnection
	unsubscribe func()
}

// New creates a resolution context for provider. Services it constructs get
// deps with the context as their Connector and the provider as their
// interceptor source.
func New(provider *service.Provider, deps *service.Dependencies, opts ...Option) *Context {
	c := &Context{
		provider:       provider,
		logger:         slog.Default(),
		factoryTimeout: DefaultFactoryTimeout,
		declaring:      make(map[string]int),
		waits:          make(map[string]*factoryWait),
	}
	if deps != nil && deps.Logger != nil {
		c.logger = deps.Logger
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "resolve")

	c.deps = &service.Dependencies{Connector: c, Interceptors: provider}
	if deps != nil {
		c.deps.Logger = deps.Logger
		c.deps.MetricsRegistry = deps.MetricsRegistry
		c.metrics = deps.MetricsRegistry.CoreMetrics()
	}

	c.unsubscribe = provider.Subscribe(c.handleEvent)
	return c
}

// Dependencies returns the dependencies handed to constructed services
func (c *Context) Dependencies() *service.Dependencies {
	return c.deps
}

// Close detaches from the provider and fails every factory wait
func (c *Context) Close() {
	c.unsubscribe()

	c.mu.Lock()
	defer c.mu.Unlock()
	for typ, w := range c.waits {
		w.timer.Stop()
		w.err = errors.Wrap(context.Canceled, "Context", "Close", "factory wait for "+typ)
		close(w.done)
		delete(c.waits, typ)
	}
	c.recordOutstanding()
}

func (c *Context) handleEvent(ev service.Event) {
	switch ev.Kind {
	case service.EventFactoryRegistered:
		c.factoryRegistered(ev.Name, ev.Factory)
	case service.EventServiceRegistered:
		c.ResolveOutstandingEndpointConnections()
	case service.EventServiceUnregistered:
		if ev.Service != nil {
			c.detach(ev.Name, ev.Service.Endpoints())
		}
	}
}

func (c *Context) factoryRegistered(typ string, factory *service.Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.waits[typ]
	if !ok {
		return
	}
	w.timer.Stop()
	w.factory = factory
	close(w.done)
	delete(c.waits, typ)
	c.recordOutstanding()
	c.logger.Debug("Factory wait satisfied", "factory", typ)
}

// ServiceFactory returns the factory for typ. Without wait a missing factory
// fails with errors.ErrUnknownFactory. With wait the call joins the single
// wait for typ, which fails with errors.ErrFactoryTimeout once the factory
// timeout expires. ctx only bounds this caller's wait.
func (c *Context) ServiceFactory(ctx context.Context, typ string, wait bool) (*service.Factory, error) {
	if f, ok := c.provider.ServiceFactory(typ); ok {
		return f, nil
	}
	if !wait {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownFactory, typ),
			"Context", "ServiceFactory", "factory lookup")
	}

	c.mu.Lock()
	// the provider stores a factory before announcing it, so a registration
	// racing with this call is either visible here or delivered after the
	// wait is in place
	if f, ok := c.provider.ServiceFactory(typ); ok {
		c.mu.Unlock()
		return f, nil
	}
	w, ok := c.waits[typ]
	if !ok {
		w = &factoryWait{done: make(chan struct{})}
		w.timer = time.AfterFunc(c.factoryTimeout, func() {
			c.expireWait(typ, w)
		})
		c.waits[typ] = w
		c.recordOutstanding()
		c.logger.Debug("Waiting for factory", "factory", typ, "timeout", c.factoryTimeout)
	}
	c.mu.Unlock()

	select {
	case <-w.done:
		return w.factory, w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Context) expireWait(typ string, w *factoryWait) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waits[typ] != w {
		return
	}
	delete(c.waits, typ)
	w.err = errors.WrapTransient(
		fmt.Errorf("%w: %s not registered within %s", errors.ErrFactoryTimeout, typ, c.factoryTimeout),
		"Context", "ServiceFactory", "factory wait")
	close(w.done)
	c.recordOutstanding()

	if c.metrics != nil {
		c.metrics.RecordFactoryTimeout(typ)
	}
	c.logger.Warn("Factory wait expired", "factory", typ, "timeout", c.factoryTimeout)
}

// DeclareService returns the service named cfg.Name. An existing service is
// reconfigured in place. Otherwise the first caller constructs it from the
// factory of cfg.Type, registers it and resolves deferred connections, while
// concurrent callers for the same name share that outcome. Construction is
// detached from the caller's cancellation; ctx only bounds the wait.
// A returned errors.AttributeErrors accompanies a usable service.
func (c *Context) DeclareService(ctx context.Context, cfg config.ServiceConfig, wait bool) (service.Service, error) {
	if err := cfg.Validate(); err != nil {
		c.recordDeclaration(err)
		return nil, errors.Wrap(err, "Context", "DeclareService", "declaration validation")
	}

	if svc, ok := c.provider.Service(cfg.Name); ok {
		return c.reconfigure(svc, cfg)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.declarations.DoChan(cfg.Name, func() (any, error) {
		return c.construct(detached, cfg, wait)
	})

	select {
	case res := <-ch:
		svc, _ := res.Val.(service.Service)
		return svc, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Context) reconfigure(svc service.Service, cfg config.ServiceConfig) (service.Service, error) {
	err := svc.Configure(cfg)
	c.ResolveOutstandingEndpointConnections()
	c.recordDeclaration(err)
	if err != nil {
		c.logger.Warn("Reconfiguration partially rejected", "target", svc.Name(), "error", err)
	} else {
		c.logger.Debug("Service reconfigured", "target", svc.Name())
	}
	return svc, err
}

func (c *Context) construct(ctx context.Context, cfg config.ServiceConfig, wait bool) (service.Service, error) {
	c.trackDeclaration(cfg.Name, 1)
	defer c.trackDeclaration(cfg.Name, -1)

	// a flight that settled just before this one started has registered it
	if svc, ok := c.provider.Service(cfg.Name); ok {
		return c.reconfigure(svc, cfg)
	}

	factory, err := c.ServiceFactory(ctx, cfg.Type, wait)
	if err != nil {
		c.recordDeclaration(err)
		return nil, errors.Wrap(err, "Context", "DeclareService", "factory for "+cfg.Name)
	}

	svc, err := factory.New(cfg, c.deps)
	if err == nil && svc == nil {
		err = fmt.Errorf("factory %s returned no service", cfg.Type)
	}
	if err != nil {
		c.recordDeclaration(err)
		return nil, errors.Wrap(err, "Context", "DeclareService", "construction of "+cfg.Name)
	}

	cfgErr := svc.Configure(cfg)
	if cfgErr != nil {
		c.logger.Warn("Declaration partially rejected", "target", cfg.Name, "error", cfgErr)
	}

	if err := c.provider.RegisterService(ctx, svc); err != nil {
		c.recordDeclaration(err)
		return svc, errors.Wrap(err, "Context", "DeclareService", "registration of "+cfg.Name)
	}

	c.ResolveOutstandingEndpointConnections()
	c.recordDeclaration(cfgErr)
	c.logger.Info("Service declared", "target", cfg.Name, "target_type", cfg.Type, "id", svc.ID())
	return svc, cfgErr
}

// DeclareServices declares every configuration concurrently. The services
// are returned in input order, nil where a declaration failed, together with
// the joined declaration errors.
func (c *Context) DeclareServices(ctx context.Context, cfgs []config.ServiceConfig, wait bool) ([]service.Service, error) {
	services := make([]service.Service, len(cfgs))
	errs := make([]error, len(cfgs))

	var g errgroup.Group
	for i, cfg := range cfgs {
		g.Go(func() error {
			services[i], errs[i] = c.DeclareService(ctx, cfg, wait)
			return nil
		})
	}
	_ = g.Wait()

	return services, stderrors.Join(errs...)
}

// ApplyConfig declares every service of cfg, waiting for missing factories,
// and validates the resulting endpoints. It suits config.Watcher.
func (c *Context) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	_, err := c.DeclareServices(ctx, cfg.ServiceList(), true)
	c.ValidateEndpoints()
	return err
}

// ConnectEndpoint connects ep to target: an endpoint, a target expression,
// or a collection of either. An expression that cannot be resolved yet gets
// a placeholder connection and is retried by
// ResolveOutstandingEndpointConnections.
func (c *Context) ConnectEndpoint(ep *endpoint.Endpoint, target any) error {
	switch t := target.(type) {
	case nil:
		return nil
	case *endpoint.Endpoint:
		return ep.AddConnection(t)
	case string:
		return c.connectExpression(ep, t)
	case []string:
		var errs []error
		for _, expr := range t {
			errs = append(errs, c.connectExpression(ep, expr))
		}
		return stderrors.Join(errs...)
	case []*endpoint.Endpoint:
		var errs []error
		for _, other := range t {
			errs = append(errs, ep.AddConnection(other))
		}
		return stderrors.Join(errs...)
	case []any:
		var errs []error
		for _, member := range t {
			errs = append(errs, c.ConnectEndpoint(ep, member))
		}
		return stderrors.Join(errs...)
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unsupported target %T", errors.ErrInvalidTarget, target),
			"Context", "ConnectEndpoint", "target type check")
	}
}

func (c *Context) connectExpression(ep *endpoint.Endpoint, expr string) error {
	target, err := endpoint.ParseExpression(expr)
	if err != nil {
		return err
	}

	if other, ok := c.lookup(ep, target); ok {
		return ep.AddConnection(other)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// a service registered since the first lookup resolves pending
	// connections only once c.mu is free, so look again before deferring
	if other, ok := c.lookup(ep, target); ok {
		return ep.AddConnection(other)
	}
	return c.deferLocked(ep, target)
}

// deferLocked records a pending connection and gives ep a placeholder; c.mu
// must be held
func (c *Context) deferLocked(ep *endpoint.Endpoint, target endpoint.Expression) error {
	if slices.ContainsFunc(c.pending, func(p *pendingConnection) bool {
		return p.ep == ep && p.target.Service == target.Service && p.target.Endpoint == target.Endpoint
	}) {
		return nil
	}
	c.pending = append(c.pending, &pendingConnection{ep: ep, target: target})

	if !slices.ContainsFunc(ep.Connections(), (*endpoint.Endpoint).IsPlaceholder) {
		if err := ep.AddConnection(endpoint.NewPlaceholder(c.logger)); err != nil {
			return err
		}
	}
	c.recordOutstanding()
	c.logger.Debug("Endpoint connection deferred", "endpoint", ep.Identifier(), "target", target.String())
	return nil
}

// Disconnect forgets the deferred connections of ep and detaches every
// connection into ep. Services call it when they drop an endpoint.
func (c *Context) Disconnect(ep *endpoint.Endpoint) {
	if ep == nil || ep.Owner() == nil {
		return
	}
	c.detach(ep.Owner().Name(), []*endpoint.Endpoint{ep})
}

// detach handles endpoints of the service called name that went away. Their
// own deferred connections are dropped. Every endpoint still connected to one
// of them falls back to a placeholder and waits for service(name).<endpoint>
// again, so a later holder of the name is wired in its place.
func (c *Context) detach(name string, gone []*endpoint.Endpoint) {
	if len(gone) == 0 {
		return
	}
	retired := make(map[*endpoint.Endpoint]bool, len(gone))
	for _, ep := range gone {
		retired[ep] = true
	}

	var live []*endpoint.Endpoint
	for _, ep := range c.provider.Endpoints() {
		if !retired[ep] {
			live = append(live, ep)
		}
	}
	for _, svc := range c.provider.Services() {
		for _, ep := range svc.Endpoints() {
			if !retired[ep] {
				live = append(live, ep)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.pending)
	c.pending = slices.DeleteFunc(c.pending, func(p *pendingConnection) bool {
		return retired[p.ep]
	})
	dropped := before - len(c.pending)

	rewired := 0
	for _, ep := range live {
		for _, other := range ep.Connections() {
			if !retired[other] {
				continue
			}
			ep.RemoveConnection(other)
			target := endpoint.Expression{Service: name, Endpoint: other.Name()}
			if err := c.deferLocked(ep, target); err != nil {
				c.logger.Error("Detaching connection failed", "endpoint", ep.Identifier(),
					"target", target.String(), "error", err)
				continue
			}
			rewired++
		}
	}

	if dropped > 0 {
		c.recordOutstanding()
	}
	if dropped > 0 || rewired > 0 {
		c.logger.Debug("Endpoints detached", "target", name, "dropped", dropped, "rewired", rewired)
	}
}

// endpointOwner is implemented by every service
type endpointOwner interface {
	Endpoint(name string) (*endpoint.Endpoint, bool)
}

// lookup resolves a target expression. Sibling expressions are looked up on
// the owner of ep, which need not be registered yet.
func (c *Context) lookup(ep *endpoint.Endpoint, target endpoint.Expression) (*endpoint.Endpoint, bool) {
	var owner endpointOwner
	switch {
	case target.IsSibling():
		o, ok := ep.Owner().(endpointOwner)
		if !ok {
			return nil, false
		}
		owner = o
	case target.Service == c.provider.Name():
		owner = c.provider
	default:
		svc, ok := c.provider.Service(target.Service)
		if !ok {
			return nil, false
		}
		owner = svc
	}

	other, ok := owner.Endpoint(target.Endpoint)
	if !ok || other == ep {
		return nil, false
	}
	return other, true
}

// ResolveOutstandingEndpointConnections retries every deferred connection.
// A resolved connection replaces the placeholders of its endpoint; the rest
// stay pending. It returns how many connections were resolved.
func (c *Context) ResolveOutstandingEndpointConnections() int {
	c.mu.Lock()
	pending := slices.Clone(c.pending)
	c.mu.Unlock()

	resolved := make(map[*pendingConnection]bool)
	for _, p := range pending {
		other, ok := c.lookup(p.ep, p.target)
		if !ok {
			continue
		}
		p.ep.RemovePlaceholders()
		if err := p.ep.AddConnection(other); err != nil {
			c.logger.Error("Deferred connection failed", "endpoint", p.ep.Identifier(),
				"target", p.target.String(), "error", err)
		} else {
			c.logger.Debug("Deferred connection resolved", "endpoint", p.ep.Identifier(),
				"target", other.Identifier())
		}
		resolved[p] = true
	}

	if len(resolved) == 0 {
		return 0
	}

	c.mu.Lock()
	c.pending = slices.DeleteFunc(c.pending, func(p *pendingConnection) bool {
		return resolved[p]
	})
	c.recordOutstanding()
	c.mu.Unlock()
	return len(resolved)
}

// ValidateEndpoints reports every sending endpoint of every registered service
// that has no real connection. The findings are logged, not fatal.
func (c *Context) ValidateEndpoints() []error {
	var errs []error
	for _, svc := range c.provider.Services() {
		for _, err := range svc.ValidateEndpoints() {
			c.logger.Warn("Unresolved endpoint", "target", svc.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordUnresolvedEndpoints(len(errs))
	}
	return errs
}

// Outstanding returns the number of pending declarations, factory waits and
// endpoint connections
func (c *Context) Outstanding() Outstanding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outstandingLocked()
}

// PendingConnections lists the deferred connections as "endpoint -> target"
func (c *Context) PendingConnections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, 0, len(c.pending))
	for _, p := range c.pending {
		lines = append(lines, p.ep.Identifier()+" -> "+p.target.String())
	}
	return lines
}

func (c *Context) outstandingLocked() Outstanding {
	return Outstanding{
		Declarations:        len(c.declaring),
		FactoryWaits:        len(c.waits),
		EndpointConnections: len(c.pending),
	}
}

func (c *Context) trackDeclaration(name string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.declaring[name] += delta
	if c.declaring[name] <= 0 {
		delete(c.declaring, name)
	}
	c.recordOutstanding()
}

// recordOutstanding publishes the outstanding counts; c.mu must be held
func (c *Context) recordOutstanding() {
	if c.metrics == nil {
		return
	}
	o := c.outstandingLocked()
	c.metrics.RecordOutstanding("declarations", o.Declarations)
	c.metrics.RecordOutstanding("factory_waits", o.FactoryWaits)
	c.metrics.RecordOutstanding("endpoint_connections", o.EndpointConnections)
}

func (c *Context) recordDeclaration(err error) {
	if c.metrics != nil {
		c.metrics.RecordDeclaration(err)
	}
}
