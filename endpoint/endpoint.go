package endpoint

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/metric"
)

// Owner is the service an endpoint belongs to
type Owner interface {
	Name() string
}

// Stats holds endpoint traffic counters
type Stats struct {
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
	Failed      int64 `json:"failed"`
	Connections int   `json:"connections"`
}

// Option configures an Endpoint
type Option func(*Endpoint)

// WithDirection sets the traffic direction
func WithDirection(d Direction) Option {
	return func(e *Endpoint) {
		e.direction = d
	}
}

// AsDefault marks the endpoint as one of the owner's default endpoints
func AsDefault(isDefault bool) Option {
	return func(e *Endpoint) {
		e.isDefault = isDefault
	}
}

// Single restricts forwarding to the first real connection
func Single(single bool) Option {
	return func(e *Endpoint) {
		e.single = single
	}
}

// WithHandler sets the receiving handler
func WithHandler(h Handler) Option {
	return func(e *Endpoint) {
		e.handler = h
	}
}

// WithInterceptors replaces the interceptor chain
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(e *Endpoint) {
		e.interceptors = slices.Clone(interceptors)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records traffic outcomes in the core metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Endpoint) {
		e.metrics = m
	}
}

// Endpoint is a named, directional attachment point of a service. It holds an
// ordered set of connections to other endpoints; none of them are owned.
type Endpoint struct {
	name  string
	owner Owner

	mu           sync.RWMutex
	direction    Direction
	isDefault    bool
	single       bool
	open         bool
	placeholder  bool
	handler      Handler
	interceptors []Interceptor
	connections  []*Endpoint
	logger       *slog.Logger
	metrics      *metric.Metrics

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New creates an open endpoint. Without options it is an in endpoint.
func New(name string, owner Owner, opts ...Option) *Endpoint {
	e := &Endpoint{
		name:      name,
		owner:     owner,
		direction: DirectionIn,
		open:      true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("endpoint", e.Identifier())
	return e
}

// NewPlaceholder creates a stand-in connection that absorbs traffic while
// the real peer is not resolvable yet
func NewPlaceholder(logger *slog.Logger) *Endpoint {
	e := New("placeholder", nil, WithDirection(DirectionBoth), WithLogger(logger))
	e.placeholder = true
	return e
}

// Configure applies options to an existing endpoint, keeping its connections
func (e *Endpoint) Configure(opts ...Option) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, opt := range opts {
		opt(e)
	}
}

// Name returns the endpoint name, unique within its owner
func (e *Endpoint) Name() string {
	return e.name
}

// Owner returns the owning service, nil for placeholders
func (e *Endpoint) Owner() Owner {
	return e.owner
}

// Identifier returns "<owner>.<name>"
func (e *Endpoint) Identifier() string {
	if e.owner == nil {
		return e.name
	}
	return e.owner.Name() + "." + e.name
}

// String implements fmt.Stringer
func (e *Endpoint) String() string {
	return e.Identifier()
}

// Direction returns the traffic direction
func (e *Endpoint) Direction() Direction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.direction
}

// IsDefault reports whether the endpoint is a default endpoint of its owner
func (e *Endpoint) IsDefault() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isDefault
}

// IsSingle reports whether forwarding uses only one connection
func (e *Endpoint) IsSingle() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.single
}

// IsPlaceholder reports whether the endpoint is a placeholder connection
func (e *Endpoint) IsPlaceholder() bool {
	return e.placeholder
}

// IsOpen reports whether traffic may flow
func (e *Endpoint) IsOpen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.open
}

// Open allows traffic again after Close
func (e *Endpoint) Open() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = true
}

// Close rejects further traffic. Connections are kept.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
}

// Interceptors returns a copy of the interceptor chain
func (e *Endpoint) Interceptors() []Interceptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.interceptors)
}

// AddConnection adds other to the connection set. Adding a present
// connection is a no-op; an endpoint never connects to itself.
func (e *Endpoint) AddConnection(other *Endpoint) error {
	if other == nil {
		return errors.WrapInvalid(errors.ErrInvalidTarget, e.Identifier(), "AddConnection", "nil target check")
	}
	if other == e {
		return errors.WrapInvalid(errors.ErrInvalidTarget, e.Identifier(), "AddConnection", "self connection check")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.Contains(e.connections, other) {
		return nil
	}
	e.connections = append(e.connections, other)
	return nil
}

// RemoveConnection removes other if present
func (e *Endpoint) RemoveConnection(other *Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connections = slices.DeleteFunc(e.connections, func(c *Endpoint) bool {
		return c == other
	})
}

// IsConnected tests membership of other in the connection set
func (e *Endpoint) IsConnected(other *Endpoint) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Contains(e.connections, other)
}

// HasConnections reports whether any connection, placeholder included, exists
func (e *Endpoint) HasConnections() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.connections) > 0
}

// HasRealConnections reports whether a connection other than a placeholder exists
func (e *Endpoint) HasRealConnections() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.ContainsFunc(e.connections, func(c *Endpoint) bool {
		return !c.placeholder
	})
}

// Connections returns a copy of the connection set in insertion order
func (e *Endpoint) Connections() []*Endpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.connections)
}

// RemovePlaceholders drops every placeholder connection and returns how many were removed
func (e *Endpoint) RemovePlaceholders() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := len(e.connections)
	e.connections = slices.DeleteFunc(e.connections, func(c *Endpoint) bool {
		return c.placeholder
	})
	return before - len(e.connections)
}

// Stats returns a snapshot of the traffic counters
func (e *Endpoint) Stats() Stats {
	e.mu.RLock()
	connections := len(e.connections)
	e.mu.RUnlock()

	return Stats{
		Delivered:   e.delivered.Load(),
		Dropped:     e.dropped.Load(),
		Failed:      e.failed.Load(),
		Connections: connections,
	}
}

// Receive delivers payload to the endpoint. A receiving endpoint with a
// handler runs its interceptor chain and then the handler. A sending endpoint
// runs the chain and forwards to its connections. Placeholders log and drop.
func (e *Endpoint) Receive(ctx context.Context, payload any) (any, error) {
	if e.placeholder {
		e.dropped.Add(1)
		e.logger.Debug("Placeholder absorbed payload", "payload_type", fmt.Sprintf("%T", payload))
		return nil, nil
	}

	e.mu.RLock()
	open := e.open
	direction := e.direction
	handler := e.handler
	interceptors := e.interceptors
	e.mu.RUnlock()

	if !open {
		e.record("dropped")
		return nil, errors.Wrap(errors.ErrEndpointClosed, e.Identifier(), "Receive", "open check")
	}

	var terminal Handler
	switch {
	case direction.Receives() && handler != nil:
		terminal = handler
	case direction.Sends():
		terminal = e.forward
	default:
		e.record("dropped")
		return nil, errors.Wrap(errors.ErrNotReceiving, e.Identifier(), "Receive", "handler lookup")
	}

	result, err := chain(e, interceptors, terminal)(ctx, payload)
	if err != nil {
		if stderrors.Is(err, errors.ErrRateLimited) {
			e.record("dropped")
		} else {
			e.record("failed")
		}
		return nil, err
	}
	e.record("delivered")
	return result, nil
}

// Send forwards payload through an out endpoint
func (e *Endpoint) Send(ctx context.Context, payload any) (any, error) {
	return e.Receive(ctx, payload)
}

// forward delivers to the connections. Single endpoints use the first real
// connection and fall back to a placeholder; others deliver to every
// connection and return the results in connection order.
func (e *Endpoint) forward(ctx context.Context, payload any) (any, error) {
	e.mu.RLock()
	connections := slices.Clone(e.connections)
	single := e.single
	e.mu.RUnlock()

	if len(connections) == 0 {
		return nil, errors.Wrap(errors.ErrNoConnection, e.Identifier(), "Send", "connection lookup")
	}

	if single {
		target := connections[0]
		if idx := slices.IndexFunc(connections, func(c *Endpoint) bool { return !c.placeholder }); idx >= 0 {
			target = connections[idx]
		}
		return target.Receive(ctx, payload)
	}

	results := make([]any, 0, len(connections))
	var errs []error
	for _, target := range connections {
		result, err := target.Receive(ctx, payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target.Identifier(), err))
			continue
		}
		results = append(results, result)
	}
	return results, stderrors.Join(errs...)
}

func (e *Endpoint) record(outcome string) {
	switch outcome {
	case "delivered":
		e.delivered.Add(1)
	case "dropped":
		e.dropped.Add(1)
	default:
		e.failed.Add(1)
	}

	e.mu.RLock()
	m := e.metrics
	e.mu.RUnlock()
	if m != nil && e.owner != nil {
		m.RecordEndpointMessage(e.owner.Name(), e.name, outcome)
	}
}
