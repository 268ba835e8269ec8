package builtin

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
	"github.com/Kronos-Integration/service-sub000/service"
)

// SinkType is the service type of Sink
const SinkType = "sink"

// ActionReset clears the counter of a running sink
const ActionReset lifecycle.Action = "reset"

// Sink accepts payloads on its "in" endpoint, logs and counts them
type Sink struct {
	*service.BaseService

	received atomic.Int64
	total    prometheus.Counter
}

// NewSink is the Constructor of the sink type
func NewSink(cfg config.ServiceConfig, deps *service.Dependencies) (service.Service, error) {
	s := &Sink{}

	table := lifecycle.DefaultActions(lifecycle.DefaultTimeout)
	table[ActionReset] = map[lifecycle.State]lifecycle.Entry{
		lifecycle.StateRunning: {
			Target:   lifecycle.StateRunning,
			InFlight: "resetting",
			Rejected: lifecycle.StateFailed,
			Timeout:  lifecycle.DefaultTimeout,
		},
	}

	base, err := service.NewBaseService(cfg, deps, s, service.WithActionTable(table))
	if err != nil {
		return nil, err
	}
	s.BaseService = base
	s.total = serviceCounter(base, "sink", "received_total", "Payloads accepted by the sink")
	s.AddEndpoint("in", endpoint.AsDefault(true), endpoint.WithHandler(s.receive))
	return s, nil
}

func (s *Sink) receive(_ context.Context, payload any) (any, error) {
	n := s.received.Add(1)
	s.total.Inc()
	s.Logger().Debug("Payload received", "count", n, "payload_type", fmt.Sprintf("%T", payload))
	return nil, nil
}

// Received returns the number of payloads accepted since the last reset.
// The exported received_total counter is never reset.
func (s *Sink) Received() int64 {
	return s.received.Load()
}

// OnStart implements service.Hooks
func (s *Sink) OnStart(context.Context) error {
	return nil
}

// OnStop implements service.Hooks
func (s *Sink) OnStop(context.Context) error {
	s.Logger().Info("Sink stopped", "received", s.received.Load())
	return nil
}

// OnAction implements service.ActionHandler
func (s *Sink) OnAction(_ context.Context, action lifecycle.Action) error {
	if action != ActionReset {
		return fmt.Errorf("sink has no action %q", action)
	}
	s.received.Store(0)
	return nil
}
