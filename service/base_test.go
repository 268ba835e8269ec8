package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
	"github.com/Kronos-Integration/service-sub000/metric"
)

// recordingHooks counts hook calls in order
type recordingHooks struct {
	mu      sync.Mutex
	calls   []string
	startFn func(ctx context.Context) error
}

func (h *recordingHooks) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *recordingHooks) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *recordingHooks) OnStart(ctx context.Context) error {
	h.record("start")
	if h.startFn != nil {
		return h.startFn(ctx)
	}
	return nil
}

func (h *recordingHooks) OnStop(_ context.Context) error {
	h.record("stop")
	return nil
}

// tunable accepts a numeric "gain" attribute below 10
type tunable struct {
	recordingHooks
	gain float64
}

func (t *tunable) ApplyAttributes(attrs map[string]any) error {
	rejected := errors.AttributeErrors{}
	if gain, ok := attrs["gain"].(float64); ok {
		if gain >= 10 {
			rejected["gain"] = errors.WrapInvalid(errors.ErrInvalidData, "tunable", "ApplyAttributes", "gain range")
		} else {
			t.gain = gain
		}
	}
	return rejected.OrNil()
}

// recordingConnector remembers every connect and disconnect request
type recordingConnector struct {
	mu           sync.Mutex
	targets      map[string]any
	disconnected []string
}

func (c *recordingConnector) ConnectEndpoint(ep *endpoint.Endpoint, target any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.targets == nil {
		c.targets = make(map[string]any)
	}
	c.targets[ep.Identifier()] = target
	return nil
}

func (c *recordingConnector) Disconnect(ep *endpoint.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = append(c.disconnected, ep.Identifier())
}

func newTestService(t *testing.T, name string, hooks Hooks, opts ...Option) *BaseService {
	t.Helper()
	svc, err := NewBaseService(config.ServiceConfig{Name: name, Type: "test"}, &Dependencies{}, hooks, opts...)
	require.NoError(t, err)
	return svc
}

func TestBaseService_StartStop(t *testing.T) {
	hooks := &recordingHooks{}
	svc := newTestService(t, "alpha", hooks)

	var mu sync.Mutex
	var states []lifecycle.State
	svc.OnStateChange(func(_, current lifecycle.State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, current)
	})

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, lifecycle.StateRunning, svc.State())
	require.NoError(t, svc.Stop(ctx))
	assert.Equal(t, lifecycle.StateStopped, svc.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []lifecycle.State{
		lifecycle.StateStarting, lifecycle.StateRunning,
		lifecycle.StateStopping, lifecycle.StateStopped,
	}, states)
	assert.Equal(t, []string{"start", "stop"}, hooks.recorded())
}

func TestBaseService_DefaultRestartStopsThenStarts(t *testing.T) {
	hooks := &recordingHooks{}
	svc := newTestService(t, "alpha", hooks)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Restart(ctx))

	assert.Equal(t, lifecycle.StateRunning, svc.State())
	assert.Equal(t, []string{"start", "stop", "start"}, hooks.recorded())
}

func TestBaseService_IllegalTransition(t *testing.T) {
	svc := newTestService(t, "alpha", &recordingHooks{})

	err := svc.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, lifecycle.StateStopped, svc.State())
}

func TestBaseService_FailedStartIsReportedInHealth(t *testing.T) {
	hooks := &recordingHooks{startFn: func(context.Context) error {
		return stderrors.New("database unavailable")
	}}
	svc := newTestService(t, "alpha", hooks)

	require.Error(t, svc.Start(context.Background()))
	assert.Equal(t, lifecycle.StateFailed, svc.State())

	status := svc.Health()
	assert.True(t, status.IsUnhealthy())
	assert.Contains(t, status.Message, "database unavailable")
	require.NotNil(t, status.Metrics)
	assert.Equal(t, 1, status.Metrics.ErrorCount)

	info := svc.Info()
	assert.Equal(t, lifecycle.StateFailed, info.State)
	assert.Contains(t, info.LastError, "database unavailable")

	// a successful retirement clears the error
	require.NoError(t, svc.Stop(context.Background()))
	assert.Empty(t, svc.Info().LastError)
}

func TestBaseService_ReconfigureKeepsID(t *testing.T) {
	svc := newTestService(t, "alpha", &recordingHooks{})
	id := svc.ID()
	require.NotEmpty(t, id)

	autostart := true
	require.NoError(t, svc.Configure(config.ServiceConfig{
		Name:       "alpha",
		Type:       "test",
		Autostart:  &autostart,
		Attributes: map[string]any{"description": "first"},
	}))
	require.NoError(t, svc.Configure(config.ServiceConfig{
		Name:       "alpha",
		Attributes: map[string]any{"description": "second"},
	}))

	assert.Equal(t, id, svc.ID())
	assert.True(t, svc.Autostart())
	assert.Equal(t, "second", svc.Attributes()["description"])
}

func TestBaseService_ConfigureReportsRejectedAttributes(t *testing.T) {
	hooks := &tunable{}
	schema := AttributeSchema{
		"gain":  {Schema: map[string]any{"type": "number"}, Default: 1.0},
		"label": {Schema: map[string]any{"type": "string"}},
	}
	svc := newTestService(t, "amp", hooks, WithAttributeSchema(schema))

	err := svc.Configure(config.ServiceConfig{
		Name: "amp",
		Attributes: map[string]any{
			"gain":     42.0,
			"label":    7,
			"logLevel": "verbose",
			"free":     "accepted without schema",
		},
	})
	require.Error(t, err)

	var rejected errors.AttributeErrors
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, []string{"gain", "label", "logLevel"}, rejected.Names())
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	attrs := svc.Attributes()
	assert.Equal(t, 1.0, attrs["gain"], "rejected value keeps the default")
	assert.Equal(t, "accepted without schema", attrs["free"])

	require.NoError(t, svc.Configure(config.ServiceConfig{
		Name:       "amp",
		Attributes: map[string]any{"gain": 3.5},
	}))
	assert.Equal(t, 3.5, hooks.gain)
	value, ok := svc.Attribute("gain")
	require.True(t, ok)
	assert.Equal(t, 3.5, value)
}

func TestBaseService_RenameAndRetypeAreRejected(t *testing.T) {
	svc := newTestService(t, "alpha", &recordingHooks{})

	err := svc.Configure(config.ServiceConfig{Name: "beta", Type: "other"})

	var rejected errors.AttributeErrors
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, []string{"name", "type"}, rejected.Names())
	assert.Equal(t, "alpha", svc.Name())
}

func TestBaseService_TimeoutAttribute(t *testing.T) {
	svc := newTestService(t, "alpha", &recordingHooks{})

	require.NoError(t, svc.Configure(config.ServiceConfig{
		Name:       "alpha",
		Attributes: map[string]any{"timeout": map[string]any{"start": 2.0, "stop": "500ms"}},
	}))

	table := svc.Engine().Table()
	assert.Equal(t, 2*time.Second, table[lifecycle.ActionStart][lifecycle.StateStopped].Timeout)
	assert.Equal(t, 500*time.Millisecond, table[lifecycle.ActionStop][lifecycle.StateRunning].Timeout)
	assert.Equal(t, lifecycle.DefaultTimeout, table[lifecycle.ActionRestart][lifecycle.StateRunning].Timeout)

	tests := []struct {
		name  string
		value any
	}{
		{"unknown action", map[string]any{"explode": 1.0}},
		{"zero timeout", map[string]any{"start": 0.0}},
		{"not an object", 5.0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := svc.Configure(config.ServiceConfig{
				Name:       "alpha",
				Attributes: map[string]any{"timeout": test.value},
			})
			var rejected errors.AttributeErrors
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, []string{"timeout"}, rejected.Names())
		})
	}
}

func TestBaseService_ConfigureEndpoints(t *testing.T) {
	connector := &recordingConnector{}
	svc, err := NewBaseService(config.ServiceConfig{Name: "alpha", Type: "test"},
		&Dependencies{Connector: connector}, &recordingHooks{})
	require.NoError(t, err)

	svc.AddEndpoint("log", endpoint.WithDirection(endpoint.DirectionOut), endpoint.Single(true))

	err = svc.Configure(config.ServiceConfig{
		Name: "alpha",
		Endpoints: map[string]config.EndpointDefinition{
			"log":    {Connect: "service(logger).in"},
			"events": {Connect: []any{"service(a).in", "service(b).in"}},
			"input":  {Default: true},
			"broken": {Direction: "sideways"},
			"traced": {Interceptors: []config.InterceptorDefinition{{Type: "missing"}}},
		},
	})

	var rejected errors.AttributeErrors
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, []string{"endpoints.broken", "endpoints.traced"}, rejected.Names())
	assert.ErrorIs(t, rejected["endpoints.traced"], errors.ErrUnknownInterceptor)

	log, ok := svc.Endpoint("log")
	require.True(t, ok)
	assert.Equal(t, endpoint.DirectionOut, log.Direction())
	assert.True(t, log.IsSingle(), "options set by the service survive configuration")

	events, ok := svc.Endpoint("events")
	require.True(t, ok)
	assert.Equal(t, endpoint.DirectionOut, events.Direction(), "connected endpoints default to out")

	input, ok := svc.Endpoint("input")
	require.True(t, ok)
	assert.Equal(t, endpoint.DirectionIn, input.Direction())
	assert.True(t, input.IsDefault())

	connector.mu.Lock()
	defer connector.mu.Unlock()
	assert.Equal(t, "service(logger).in", connector.targets["alpha.log"])
	assert.Equal(t, []any{"service(a).in", "service(b).in"}, connector.targets["alpha.events"])
}

func TestBaseService_ConnectWithoutConnectorIsRejected(t *testing.T) {
	svc := newTestService(t, "alpha", &recordingHooks{})

	err := svc.Configure(config.ServiceConfig{
		Name:      "alpha",
		Endpoints: map[string]config.EndpointDefinition{"out": {Connect: "service(x).in"}},
	})

	var rejected errors.AttributeErrors
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, []string{"endpoints.out"}, rejected.Names())
}

func TestBaseService_Interceptors(t *testing.T) {
	var seen atomic.Int32
	source := interceptorSource{
		"count": &InterceptorFactory{
			Type: "count",
			New: func(_ map[string]any, _ *Dependencies) (endpoint.Interceptor, error) {
				return endpoint.InterceptorFunc{
					Name: "count",
					Fn: func(ctx context.Context, _ *endpoint.Endpoint, payload any, next endpoint.Handler) (any, error) {
						seen.Add(1)
						return next(ctx, payload)
					},
				}, nil
			},
		},
	}
	svc, err := NewBaseService(config.ServiceConfig{Name: "alpha", Type: "test"},
		&Dependencies{Interceptors: source}, &recordingHooks{})
	require.NoError(t, err)

	svc.AddEndpoint("in", endpoint.WithHandler(func(_ context.Context, payload any) (any, error) {
		return payload, nil
	}))
	require.NoError(t, svc.Configure(config.ServiceConfig{
		Name: "alpha",
		Endpoints: map[string]config.EndpointDefinition{
			"in": {Interceptors: []config.InterceptorDefinition{{Type: "count"}}},
		},
	}))

	ep, _ := svc.Endpoint("in")
	result, err := ep.Receive(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", result)
	assert.Equal(t, int32(1), seen.Load())
}

type interceptorSource map[string]*InterceptorFactory

func (s interceptorSource) InterceptorFactory(typ string) (*InterceptorFactory, bool) {
	f, ok := s[typ]
	return f, ok
}

func TestBaseService_ValidateEndpoints(t *testing.T) {
	svc := newTestService(t, "alpha", &recordingHooks{})
	peer := newTestService(t, "beta", &recordingHooks{})

	svc.AddEndpoint("in")
	out := svc.AddEndpoint("out", endpoint.WithDirection(endpoint.DirectionOut))
	require.NoError(t, out.AddConnection(endpoint.NewPlaceholder(nil)))
	duplex := svc.AddEndpoint("duplex", endpoint.WithDirection(endpoint.DirectionBoth))

	errs := svc.ValidateEndpoints()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], errors.ErrUnresolvedEndpoint)
	assert.Contains(t, errs[0].Error(), "alpha.out")
	assert.ErrorIs(t, errs[1], errors.ErrUnresolvedEndpoint)
	assert.Contains(t, errs[1].Error(), "alpha.duplex")

	peerIn := peer.AddEndpoint("in")
	require.NoError(t, out.AddConnection(peerIn))
	require.NoError(t, duplex.AddConnection(peerIn))
	assert.Empty(t, svc.ValidateEndpoints())
}

func TestBaseService_RemoveEndpoint(t *testing.T) {
	connector := &recordingConnector{}
	svc, err := NewBaseService(config.ServiceConfig{Name: "alpha", Type: "test"},
		&Dependencies{Connector: connector}, &recordingHooks{})
	require.NoError(t, err)
	ep := svc.AddEndpoint("in")

	assert.True(t, svc.RemoveEndpoint("in"))
	assert.False(t, svc.RemoveEndpoint("in"))
	assert.False(t, ep.IsOpen())
	assert.Empty(t, svc.Endpoints())
	assert.Equal(t, []string{"alpha.in"}, connector.disconnected)
}

func TestBaseService_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	svc, err := NewBaseService(config.ServiceConfig{Name: "alpha", Type: "test"},
		&Dependencies{MetricsRegistry: registry}, &recordingHooks{})
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))

	m := registry.CoreMetrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ServiceState.WithLabelValues("alpha")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("alpha", "start", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("alpha")))
}

func TestNewBaseService_Validation(t *testing.T) {
	_, err := NewBaseService(config.ServiceConfig{}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = NewBaseService(config.ServiceConfig{Name: "x"}, nil, nil,
		WithActionTable(lifecycle.ActionTable{}))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = NewBaseService(config.ServiceConfig{Name: "x"}, nil, nil,
		WithAttributeSchema(AttributeSchema{"bad": {Schema: map[string]any{"type": "no-such-type"}}}))
	assert.Error(t, err)
}

func TestBaseService_LogLevel(t *testing.T) {
	svc := newTestService(t, "alpha", &recordingHooks{})
	ctx := context.Background()

	require.NoError(t, svc.Configure(config.ServiceConfig{
		Name:       "alpha",
		Attributes: map[string]any{"logLevel": "error"},
	}))
	assert.False(t, svc.Logger().Enabled(ctx, slog.LevelWarn))
	assert.True(t, svc.Logger().Enabled(ctx, slog.LevelError))
	assert.Equal(t, "error", svc.Attributes()["logLevel"])
}
