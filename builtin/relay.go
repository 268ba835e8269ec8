package builtin

import (
	"context"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/service"
)

// RelayType is the service type of Relay
const RelayType = "relay"

// Relay forwards everything arriving at "in" through "out"
type Relay struct {
	*service.BaseService

	out *endpoint.Endpoint
}

// NewRelay is the Constructor of the relay type
func NewRelay(cfg config.ServiceConfig, deps *service.Dependencies) (service.Service, error) {
	r := &Relay{}
	base, err := service.NewBaseService(cfg, deps, service.HookFuncs{})
	if err != nil {
		return nil, err
	}
	r.BaseService = base
	r.out = r.AddEndpoint("out", endpoint.WithDirection(endpoint.DirectionOut))
	r.AddEndpoint("in", endpoint.AsDefault(true), endpoint.WithHandler(r.forward))
	return r, nil
}

func (r *Relay) forward(ctx context.Context, payload any) (any, error) {
	return r.out.Send(ctx, payload)
}
