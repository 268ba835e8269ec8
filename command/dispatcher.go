package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/health"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
	"github.com/Kronos-Integration/service-sub000/metric"
	"github.com/Kronos-Integration/service-sub000/service"
)

// Administrative actions
const (
	ActionList    = "list"
	ActionGet     = "get"
	ActionStart   = string(lifecycle.ActionStart)
	ActionStop    = string(lifecycle.ActionStop)
	ActionRestart = string(lifecycle.ActionRestart)
)

// Transport labels recorded with every command
const (
	TransportDirect = "direct"
	TransportHTTP   = "http"
	TransportNATS   = "nats"
)

// Request is one administrative command
type Request struct {
	Action  string         `json:"action"`
	Service string         `json:"service,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Response is the wire form of a command outcome
type Response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// ServiceDetails is the result of get and of the lifecycle actions
type ServiceDetails struct {
	service.Info
	Health     health.Status `json:"health"`
	Unresolved []string      `json:"unresolved,omitempty"`
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records every command in the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(d *Dispatcher) {
		d.metrics = registry.CoreMetrics()
	}
}

// WithHealthCheck adds a component, such as a transport connection, to the
// system health
func WithHealthCheck(check func() health.Status) Option {
	return func(d *Dispatcher) {
		if check != nil {
			d.checks = append(d.checks, check)
		}
	}
}

// Dispatcher executes administrative commands against a Provider
type Dispatcher struct {
	provider *service.Provider
	logger   *slog.Logger
	metrics  *metric.Metrics
	checks   []func() health.Status
}

// NewDispatcher creates a dispatcher for provider
func NewDispatcher(provider *service.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "command")
	return d
}

// Execute runs req. list returns []service.Info; get and every action of
// the service's action table return ServiceDetails. An action neither the
// dispatcher nor the service knows fails with errors.ErrUnknownCommand, an
// unknown service with errors.ErrUnknownService.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (any, error) {
	return d.execute(ctx, TransportDirect, req)
}

func (d *Dispatcher) execute(ctx context.Context, transport string, req Request) (result any, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = ErrorCode(err)
			d.logger.Warn("Command failed", "transport", transport, "action", req.Action,
				"target", req.Service, "error", err)
		} else {
			d.logger.Debug("Command executed", "transport", transport, "action", req.Action,
				"target", req.Service, "duration", time.Since(start))
		}
		if d.metrics != nil {
			d.metrics.RecordCommand(transport, req.Action, status)
		}
	}()

	switch req.Action {
	case ActionList:
		return d.list(), nil

	case ActionGet:
		svc, err := d.lookup(req.Service)
		if err != nil {
			return nil, err
		}
		return d.details(svc, config.GetBool(req.Options, "validate", false)), nil

	case ActionStart, ActionStop, ActionRestart:
		svc, err := d.lookup(req.Service)
		if err != nil {
			return nil, err
		}
		return d.perform(ctx, svc, req)

	default:
		// any other action of the service's action table, such as reset
		if req.Action == "" || req.Service == "" {
			return nil, unknownCommand(req.Action)
		}
		svc, err := d.lookup(req.Service)
		if err != nil {
			return nil, err
		}
		return d.perform(ctx, svc, req)
	}
}

func (d *Dispatcher) perform(ctx context.Context, svc service.Service, req Request) (any, error) {
	if err := svc.Perform(ctx, lifecycle.Action(req.Action)); err != nil {
		if stderrors.Is(err, errors.ErrUnknownAction) {
			return nil, unknownCommand(req.Action)
		}
		return nil, errors.Wrap(err, "Dispatcher", "Execute", req.Action+" "+req.Service)
	}
	d.logger.Info("Service action performed", "action", req.Action, "target", req.Service,
		"state", svc.State())
	return d.details(svc, false), nil
}

func unknownCommand(action string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %q", errors.ErrUnknownCommand, action),
		"Dispatcher", "Execute", "action lookup")
}

// lookup resolves a service name. The provider answers to its own name.
func (d *Dispatcher) lookup(name string) (service.Service, error) {
	if name != "" && name == d.provider.Name() {
		return d.provider, nil
	}
	if svc, ok := d.provider.Service(name); ok {
		return svc, nil
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%w: %q", errors.ErrUnknownService, name),
		"Dispatcher", "Execute", "service lookup")
}

func (d *Dispatcher) list() []service.Info {
	services := d.provider.Services()
	infos := make([]service.Info, 0, len(services))
	for _, svc := range services {
		infos = append(infos, svc.Info())
	}
	return infos
}

func (d *Dispatcher) details(svc service.Service, validate bool) ServiceDetails {
	details := ServiceDetails{Info: svc.Info(), Health: svc.Health()}
	if validate {
		details.Unresolved = []string{}
		for _, err := range svc.ValidateEndpoints() {
			details.Unresolved = append(details.Unresolved, err.Error())
		}
	}
	return details
}

// Health aggregates the provider, its services and every added health check
func (d *Dispatcher) Health() health.Status {
	statuses := []health.Status{d.provider.SystemHealth()}
	for _, check := range d.checks {
		statuses = append(statuses, check())
	}
	return health.Aggregate("system", statuses)
}

// ErrorCode maps an error to the code reported by the transports
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, errors.ErrUnknownService):
		return "unknown_service"
	case stderrors.Is(err, errors.ErrUnknownCommand):
		return "unknown_command"
	case stderrors.Is(err, errors.ErrIllegalTransition):
		return "illegal_transition"
	case stderrors.Is(err, errors.ErrTransitionTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.IsInvalid(err):
		return "invalid_request"
	default:
		return "failed"
	}
}
