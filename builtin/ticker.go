package builtin

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/service"
)

// TickerType is the service type of Ticker
const TickerType = "ticker"

// DefaultTickInterval is used until an interval attribute is applied
const DefaultTickInterval = time.Second

// Tick is the payload emitted by a Ticker
type Tick struct {
	Sequence int64     `json:"sequence"`
	Time     time.Time `json:"time"`
}

var tickerAttributes = service.AttributeSchema{
	"interval": {
		Description: "time between two ticks, as duration string or seconds",
		Schema:      map[string]any{"type": []any{"string", "number"}},
		Default:     DefaultTickInterval.String(),
	},
}

// Ticker emits a Tick through "out" at a fixed interval while running
type Ticker struct {
	*service.BaseService

	out   *endpoint.Endpoint
	ticks prometheus.Counter

	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTicker is the Constructor of the ticker type
func NewTicker(cfg config.ServiceConfig, deps *service.Dependencies) (service.Service, error) {
	t := &Ticker{interval: DefaultTickInterval}
	base, err := service.NewBaseService(cfg, deps, t, service.WithAttributeSchema(tickerAttributes))
	if err != nil {
		return nil, err
	}
	t.BaseService = base
	t.out = t.AddEndpoint("out", endpoint.AsDefault(true), endpoint.WithDirection(endpoint.DirectionOut))
	t.ticks = serviceCounter(base, "ticker", "ticks_total", "Ticks emitted by the ticker")
	return t, nil
}

// Interval returns the current tick interval
func (t *Ticker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// ApplyAttributes implements service.Reconfigurable. A running ticker
// switches to a new interval immediately.
func (t *Ticker) ApplyAttributes(attrs map[string]any) error {
	raw, ok := attrs["interval"]
	if !ok {
		return nil
	}

	interval, err := config.ParseDuration(raw)
	if err == nil && interval <= 0 {
		err = stderrors.New("interval must be positive")
	}
	if err != nil {
		return errors.AttributeErrors{
			"interval": errors.WrapInvalid(err, "Ticker", "ApplyAttributes", "interval parsing"),
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = interval
	if t.ticker != nil {
		t.ticker.Reset(interval)
	}
	return nil
}

// OnStart implements service.Hooks
func (t *Ticker) OnStart(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	t.ticker = time.NewTicker(t.interval)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.ticker, t.done)
	return nil
}

// OnStop implements service.Hooks
func (t *Ticker) OnStop(ctx context.Context) error {
	t.mu.Lock()
	cancel, done, ticker := t.cancel, t.done, t.ticker
	t.cancel, t.done, t.ticker = nil, nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	ticker.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticker) run(ctx context.Context, ticker *time.Ticker, done chan struct{}) {
	defer close(done)

	var sequence int64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sequence++
			t.ticks.Inc()
			if _, err := t.out.Send(ctx, Tick{Sequence: sequence, Time: now}); err != nil {
				t.Logger().Warn("Tick not delivered", "sequence", sequence, "error", err)
			}
		}
	}
}
