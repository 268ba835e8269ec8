package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/health"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
	"github.com/Kronos-Integration/service-sub000/metric"
)

// Hooks are the lifecycle implementation of a concrete service. Each hook
// runs once per transition attempt with the transition timeout as deadline.
type Hooks interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
}

// Restarter replaces the default restart, which is stop followed by start
type Restarter interface {
	OnRestart(ctx context.Context) error
}

// ActionHandler implements custom actions of an extended action table
type ActionHandler interface {
	OnAction(ctx context.Context, action lifecycle.Action) error
}

// Reconfigurable receives the service specific attributes accepted by
// Configure. Returning errors.AttributeErrors rejects individual attributes.
type Reconfigurable interface {
	ApplyAttributes(attrs map[string]any) error
}

// HookFuncs adapts plain functions to Hooks. Nil functions succeed.
type HookFuncs struct {
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// OnStart runs Start
func (h HookFuncs) OnStart(ctx context.Context) error {
	if h.Start == nil {
		return nil
	}
	return h.Start(ctx)
}

// OnStop runs Stop
func (h HookFuncs) OnStop(ctx context.Context) error {
	if h.Stop == nil {
		return nil
	}
	return h.Stop(ctx)
}

// Option is a functional option for configuring BaseService
type Option func(*BaseService)

// WithAttributeSchema declares the service specific attributes
func WithAttributeSchema(schema AttributeSchema) Option {
	return func(s *BaseService) {
		s.definitions = schema
	}
}

// WithActionTable replaces the default start/stop/restart table
func WithActionTable(table lifecycle.ActionTable) Option {
	return func(s *BaseService) {
		s.table = table
	}
}

// WithTimeout sets the timeout of every default transition
func WithTimeout(timeout time.Duration) Option {
	return func(s *BaseService) {
		s.table = lifecycle.DefaultActions(timeout)
	}
}

type stateListener struct {
	token uint64
	fn    func(old, current lifecycle.State)
}

// BaseService implements Service on top of a lifecycle engine. Concrete
// services embed it and hand their hooks to NewBaseService.
type BaseService struct {
	id      string
	name    string
	typ     string
	deps    *Dependencies
	hooks   Hooks
	engine  *lifecycle.Engine
	table   lifecycle.ActionTable
	logger  *slog.Logger
	level   *levelHandler
	metrics *metric.Metrics

	definitions AttributeSchema
	schema      compiledSchema

	mu          sync.RWMutex
	autostart   bool
	description string
	logLevel    string
	timeouts    map[string]any
	attributes  map[string]any
	endpoints   map[string]*endpoint.Endpoint
	order       []string
	startTime   time.Time
	lastErr     error
	rejections  int

	listenersMu sync.Mutex
	listeners   []stateListener
	nextToken   uint64
}

// NewBaseService creates a stopped service named after cfg. It does not
// apply cfg; the declaring caller runs Configure right after construction.
func NewBaseService(cfg config.ServiceConfig, deps *Dependencies, hooks Hooks, opts ...Option) (*BaseService, error) {
	if cfg.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "BaseService", "NewBaseService", "name check")
	}
	if hooks == nil {
		hooks = HookFuncs{}
	}

	level := newLevelHandler(deps.logger().Handler())
	s := &BaseService{
		id:         uuid.NewString(),
		name:       cfg.Name,
		typ:        cfg.Type,
		deps:       deps,
		hooks:      hooks,
		table:      lifecycle.DefaultActions(lifecycle.DefaultTimeout),
		level:      level,
		metrics:    deps.metrics(),
		autostart:  cfg.AutostartOr(false),
		attributes: make(map[string]any),
		endpoints:  make(map[string]*endpoint.Endpoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = slog.New(level).With("service", s.name, "type", s.typ)

	schema, err := s.definitions.compile()
	if err != nil {
		return nil, errors.Wrap(err, s.name, "NewBaseService", "attribute schema compilation")
	}
	s.schema = schema

	if err := s.table.Validate(); err != nil {
		return nil, errors.Wrap(err, s.name, "NewBaseService", "action table validation")
	}
	s.engine = lifecycle.NewEngine((*lifecycleSubject)(s), s.table, lifecycle.StateStopped)

	if s.metrics != nil {
		s.metrics.RecordServiceState(s.name, lifecycle.StateStopped.String())
	}
	return s, nil
}

// ID returns the identity assigned at construction. Reconfiguration keeps it.
func (s *BaseService) ID() string {
	return s.id
}

// Name returns the service name
func (s *BaseService) Name() string {
	return s.name
}

// Type returns the factory type the service was created from
func (s *BaseService) Type() string {
	return s.typ
}

// Logger returns the service logger
func (s *BaseService) Logger() *slog.Logger {
	return s.logger
}

// Dependencies returns the dependencies the service was created with
func (s *BaseService) Dependencies() *Dependencies {
	return s.deps
}

// State returns the current lifecycle state
func (s *BaseService) State() lifecycle.State {
	return s.engine.State()
}

// Engine exposes the transition engine, mainly to join in-flight transitions
func (s *BaseService) Engine() *lifecycle.Engine {
	return s.engine
}

// Autostart reports whether the provider starts the service
func (s *BaseService) Autostart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autostart
}

// Start performs the start action
func (s *BaseService) Start(ctx context.Context) error {
	return s.engine.Perform(ctx, lifecycle.ActionStart)
}

// Stop performs the stop action
func (s *BaseService) Stop(ctx context.Context) error {
	return s.engine.Perform(ctx, lifecycle.ActionStop)
}

// Restart performs the restart action
func (s *BaseService) Restart(ctx context.Context) error {
	return s.engine.Perform(ctx, lifecycle.ActionRestart)
}

// Perform runs any action of the action table
func (s *BaseService) Perform(ctx context.Context, action lifecycle.Action) error {
	return s.engine.Perform(ctx, action)
}

// OnStateChange registers fn for every state change of the service
func (s *BaseService) OnStateChange(fn func(old, current lifecycle.State)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextToken++
	token := s.nextToken
	s.listeners = append(s.listeners, stateListener{token: token, fn: fn})

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l stateListener) bool {
			return l.token == token
		})
	}
}

// Configure applies a declaration in place: autostart, built-in and service
// attributes, then endpoint definitions. Every rejected attribute or endpoint
// is reported in the returned errors.AttributeErrors; the rest is applied.
func (s *BaseService) Configure(cfg config.ServiceConfig) error {
	rejected := errors.AttributeErrors{}

	if cfg.Name != "" && cfg.Name != s.name {
		rejected["name"] = errors.WrapInvalid(
			fmt.Errorf("%w: %s cannot be renamed to %s", errors.ErrInvalidConfig, s.name, cfg.Name),
			s.name, "Configure", "name check")
	}
	if cfg.Type != "" && s.typ != "" && cfg.Type != s.typ {
		rejected["type"] = errors.WrapInvalid(
			fmt.Errorf("%w: type %s cannot change to %s", errors.ErrInvalidConfig, s.typ, cfg.Type),
			s.name, "Configure", "type check")
	}
	if cfg.Autostart != nil {
		s.mu.Lock()
		s.autostart = *cfg.Autostart
		s.mu.Unlock()
	}

	accepted := make(map[string]any)
	for _, name := range slices.Sorted(maps.Keys(cfg.Attributes)) {
		value := cfg.Attributes[name]
		if known, err := compiledBuiltins.validate(name, value); known {
			if err == nil {
				err = s.applyBuiltin(name, value)
			}
			if err != nil {
				rejected[name] = err
			}
			continue
		}
		if _, err := s.schema.validate(name, value); err != nil {
			rejected[name] = err
			continue
		}
		accepted[name] = value
	}

	if len(accepted) > 0 {
		if r, ok := s.hooks.(Reconfigurable); ok {
			s.applyServiceAttributes(r, accepted, rejected)
		}
		s.mu.Lock()
		maps.Copy(s.attributes, accepted)
		s.mu.Unlock()
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Endpoints)) {
		if err := s.configureEndpoint(name, cfg.Endpoints[name]); err != nil {
			rejected["endpoints."+name] = err
		}
	}

	if len(rejected) > 0 {
		s.logger.Warn("Configuration partially rejected",
			"accepted", len(accepted), "rejected", rejected.Names())
	} else {
		s.logger.Debug("Configuration applied",
			"attributes", len(cfg.Attributes), "endpoints", len(cfg.Endpoints))
	}
	return rejected.OrNil()
}

// applyServiceAttributes hands accepted attributes to the service and moves
// the ones it refuses from accepted to rejected
func (s *BaseService) applyServiceAttributes(r Reconfigurable, accepted map[string]any, rejected errors.AttributeErrors) {
	err := r.ApplyAttributes(maps.Clone(accepted))
	if err == nil {
		return
	}

	var attrErrs errors.AttributeErrors
	if stderrors.As(err, &attrErrs) {
		for name, attrErr := range attrErrs {
			rejected[name] = attrErr
			delete(accepted, name)
		}
		return
	}

	for name := range accepted {
		rejected[name] = errors.Wrap(err, s.name, "Configure", "apply attributes")
		delete(accepted, name)
	}
}

func (s *BaseService) applyBuiltin(name string, value any) error {
	switch name {
	case "autostart":
		autostart, _ := value.(bool)
		s.mu.Lock()
		s.autostart = autostart
		s.mu.Unlock()

	case "description":
		description, _ := value.(string)
		s.mu.Lock()
		s.description = description
		s.mu.Unlock()

	case "logLevel":
		text, _ := value.(string)
		level, err := parseLevel(text)
		if err != nil {
			return errors.WrapInvalid(err, s.name, "Configure", "log level parsing")
		}
		s.level.set(level)
		s.mu.Lock()
		s.logLevel = text
		s.mu.Unlock()

	case "timeout":
		return s.applyTimeouts(value)
	}
	return nil
}

func (s *BaseService) applyTimeouts(value any) error {
	timeouts, ok := value.(map[string]any)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidData, s.name, "Configure", "timeout object check")
	}

	table := s.engine.Table()
	for _, action := range slices.Sorted(maps.Keys(timeouts)) {
		if _, known := table[lifecycle.Action(action)]; !known {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrUnknownAction, action),
				s.name, "Configure", "timeout action lookup")
		}
		d, err := config.ParseDuration(timeouts[action])
		if err != nil {
			return errors.WrapInvalid(err, s.name, "Configure", "timeout parsing")
		}
		if d <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: timeout of %s must be positive", errors.ErrInvalidConfig, action),
				s.name, "Configure", "timeout check")
		}
		table = table.WithTimeout(lifecycle.Action(action), d)
	}

	if err := s.engine.SetTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	s.timeouts = maps.Clone(timeouts)
	s.mu.Unlock()
	return nil
}

// configureEndpoint creates or updates one declared endpoint and hands its
// connect target to the connector
func (s *BaseService) configureEndpoint(name string, def config.EndpointDefinition) error {
	_, exists := s.Endpoint(name)

	var opts []endpoint.Option
	switch {
	case def.Direction != "":
		direction, err := endpoint.ParseDirection(def.Direction)
		if err != nil {
			return err
		}
		opts = append(opts, endpoint.WithDirection(direction))
	case !exists && def.Connect != nil:
		opts = append(opts, endpoint.WithDirection(endpoint.DirectionOut))
	}
	if def.Default {
		opts = append(opts, endpoint.AsDefault(true))
	}
	if def.Single {
		opts = append(opts, endpoint.Single(true))
	}

	if len(def.Interceptors) > 0 {
		interceptors, err := s.buildInterceptors(def.Interceptors)
		if err != nil {
			return err
		}
		opts = append(opts, endpoint.WithInterceptors(interceptors...))
	}

	ep := s.AddEndpoint(name, opts...)

	if def.Connect == nil {
		return nil
	}
	if s.deps == nil || s.deps.Connector == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: no connector for %s", errors.ErrInvalidConfig, ep.Identifier()),
			s.name, "Configure", "connector lookup")
	}
	return s.deps.Connector.ConnectEndpoint(ep, def.Connect)
}

func (s *BaseService) buildInterceptors(defs []config.InterceptorDefinition) ([]endpoint.Interceptor, error) {
	interceptors := make([]endpoint.Interceptor, 0, len(defs))
	for _, def := range defs {
		var factory *InterceptorFactory
		var ok bool
		if s.deps != nil && s.deps.Interceptors != nil {
			factory, ok = s.deps.Interceptors.InterceptorFactory(def.Type)
		}
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrUnknownInterceptor, def.Type),
				s.name, "Configure", "interceptor lookup")
		}

		interceptor, err := factory.New(def.Attributes, s.deps)
		if err != nil {
			return nil, errors.Wrap(err, s.name, "Configure", "interceptor "+def.Type+" creation")
		}
		interceptors = append(interceptors, interceptor)
	}
	return interceptors, nil
}

// AddEndpoint creates the named endpoint, or applies opts to the existing one
func (s *BaseService) AddEndpoint(name string, opts ...endpoint.Option) *endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ep, exists := s.endpoints[name]; exists {
		ep.Configure(opts...)
		return ep
	}

	base := []endpoint.Option{endpoint.WithLogger(s.logger), endpoint.WithMetrics(s.metrics)}
	ep := endpoint.New(name, s, append(base, opts...)...)
	s.endpoints[name] = ep
	s.order = append(s.order, name)
	return ep
}

// RemoveEndpoint closes and drops the named endpoint
func (s *BaseService) RemoveEndpoint(name string) bool {
	s.mu.Lock()
	ep, exists := s.endpoints[name]
	if exists {
		delete(s.endpoints, name)
		s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	}
	s.mu.Unlock()

	if exists {
		ep.Close()
		if s.deps != nil && s.deps.Connector != nil {
			s.deps.Connector.Disconnect(ep)
		}
	}
	return exists
}

// Endpoint looks up an endpoint by name
func (s *BaseService) Endpoint(name string) (*endpoint.Endpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, exists := s.endpoints[name]
	return ep, exists
}

// Endpoints returns the endpoints in creation order
func (s *BaseService) Endpoints() []*endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := make([]*endpoint.Endpoint, 0, len(s.order))
	for _, name := range s.order {
		eps = append(eps, s.endpoints[name])
	}
	return eps
}

// ValidateEndpoints reports every sending endpoint without a real
// connection. Unconnected in endpoints are valid.
func (s *BaseService) ValidateEndpoints() []error {
	var errs []error
	for _, ep := range s.Endpoints() {
		if !ep.Direction().Sends() || ep.HasRealConnections() {
			continue
		}
		errs = append(errs, errors.Wrap(
			fmt.Errorf("%w: %s", errors.ErrUnresolvedEndpoint, ep.Identifier()),
			s.name, "ValidateEndpoints", "connection check"))
	}
	return errs
}

// Attributes returns the current attribute values, built-ins included
func (s *BaseService) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attrs := s.definitions.Defaults()
	maps.Copy(attrs, s.attributes)
	attrs["autostart"] = s.autostart
	if s.description != "" {
		attrs["description"] = s.description
	}
	if s.logLevel != "" {
		attrs["logLevel"] = s.logLevel
	}
	if s.timeouts != nil {
		attrs["timeout"] = maps.Clone(s.timeouts)
	}
	return attrs
}

// Attribute returns the current value of a service attribute or its default
func (s *BaseService) Attribute(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if value, ok := s.attributes[name]; ok {
		return value, true
	}
	if def, ok := s.definitions[name]; ok && def.Default != nil {
		return def.Default, true
	}
	return nil, false
}

// AttributeSchema returns the built-in and service attribute definitions
func (s *BaseService) AttributeSchema() AttributeSchema {
	return builtinAttributes.Merge(s.definitions)
}

// Health derives the health status from the lifecycle state
func (s *BaseService) Health() health.Status {
	state := s.State()

	s.mu.RLock()
	lastErr := s.lastErr
	rejections := s.rejections
	startTime := s.startTime
	s.mu.RUnlock()

	var uptime time.Duration
	if state == lifecycle.StateRunning && !startTime.IsZero() {
		uptime = time.Since(startTime)
	}

	var processed int64
	for _, ep := range s.Endpoints() {
		processed += ep.Stats().Delivered
	}

	return health.FromState(s.name, state.String(), lastErr).WithMetrics(&health.Metrics{
		Uptime:            uptime,
		ErrorCount:        rejections,
		MessagesProcessed: processed,
	})
}

// Info returns a snapshot of the service for the command surface
func (s *BaseService) Info() Info {
	state := s.State()

	s.mu.RLock()
	info := Info{
		ID:          s.id,
		Name:        s.name,
		Type:        s.typ,
		State:       state,
		Autostart:   s.autostart,
		Description: s.description,
		StartTime:   s.startTime,
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()

	if state == lifecycle.StateRunning && !info.StartTime.IsZero() {
		info.Uptime = time.Since(info.StartTime)
	}
	for _, ep := range s.Endpoints() {
		info.Endpoints = append(info.Endpoints, describeEndpoint(ep))
	}
	info.Attributes = s.Attributes()
	return info
}

// lifecycleSubject binds the engine callbacks to a BaseService without
// exporting them
type lifecycleSubject BaseService

func (ls *lifecycleSubject) service() *BaseService {
	return (*BaseService)(ls)
}

func (ls *lifecycleSubject) Name() string {
	return ls.name
}

func (ls *lifecycleSubject) RunAction(ctx context.Context, action lifecycle.Action) error {
	s := ls.service()
	switch action {
	case lifecycle.ActionStart:
		return s.hooks.OnStart(ctx)
	case lifecycle.ActionStop:
		return s.hooks.OnStop(ctx)
	case lifecycle.ActionRestart:
		if r, ok := s.hooks.(Restarter); ok {
			return r.OnRestart(ctx)
		}
		if err := s.hooks.OnStop(ctx); err != nil {
			return err
		}
		return s.hooks.OnStart(ctx)
	}

	if h, ok := s.hooks.(ActionHandler); ok {
		return h.OnAction(ctx, action)
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s has no implementation", errors.ErrUnknownAction, action),
		s.name, "RunAction", "hook lookup")
}

func (ls *lifecycleSubject) RejectWrongState(action lifecycle.Action, current lifecycle.State) error {
	s := ls.service()
	s.logger.Warn("Illegal transition", "action", action, "state", current)
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s is not possible while %s", errors.ErrIllegalTransition, action, current),
		s.name, "Perform", "state check")
}

func (ls *lifecycleSubject) StateChanged(old, current lifecycle.State) {
	s := ls.service()
	s.logger.Info("State changed", "from", old, "to", current)

	if current == lifecycle.StateRunning {
		s.mu.Lock()
		if old != lifecycle.StateRestarting || s.startTime.IsZero() {
			s.startTime = time.Now()
		}
		s.mu.Unlock()
	}

	if s.metrics != nil {
		s.metrics.RecordServiceState(s.name, current.String())
		s.metrics.RecordHealthStatus(s.name, current == lifecycle.StateRunning)
	}

	s.listenersMu.Lock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.Unlock()
	for _, l := range listeners {
		l.fn(old, current)
	}
}

func (ls *lifecycleSubject) TransitionRejected(reason error, target lifecycle.State) {
	s := ls.service()
	s.mu.Lock()
	s.lastErr = reason
	s.rejections++
	s.mu.Unlock()

	s.logger.Error("Transition rejected", "target", target, "error", reason)
}

func (ls *lifecycleSubject) TransitionSettled(t *lifecycle.Transition) {
	s := ls.service()
	if t.Err() == nil {
		s.mu.Lock()
		s.lastErr = nil
		s.mu.Unlock()
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(s.name, t.Action.String(), t.Duration(), t.Err())
	}
}
