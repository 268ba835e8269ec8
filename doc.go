// Package servicekit is an in-process runtime for named, stateful services
// whose construction and wiring may happen in any order.
//
// # Architecture
//
// Leaf packages first:
//
//   - errors: sentinel errors, Wrap and the invalid/transient/fatal classification
//   - lifecycle: action tables and the transition engine that serializes
//     every state change of one service and bounds it by a timeout
//   - endpoint: directional attachment points, placeholder connections,
//     target expressions and interceptor chains
//   - service: BaseService, the Provider registry, factories and attribute schemas
//   - resolve: the resolution context that declares services before their
//     factory exists and connects endpoints before their peer exists
//   - command: list/get/start/stop/restart over HTTP and NATS
//   - config, health, metric, natsclient, pkg/retry: the ambient stack
//   - builtin: the sink, relay and ticker services plus logging and
//     rate-limit interceptors
//
// # Declaring services
//
// A resolution context sits on top of a provider. Declarations wait, bounded,
// for their factory; connections to missing endpoints get a placeholder and
// are completed once the peer registers:
//
//	provider, _ := service.NewProvider(config.ServiceConfig{}, deps)
//	rc := resolve.New(provider, deps)
//	defer rc.Close()
//
//	_ = builtin.Register(provider)
//	_, err := rc.DeclareServices(ctx, cfg.ServiceList(), true)
//	_ = provider.Start(ctx)
//
// The servicekit binary in cmd/servicekit does the same from a configuration
// file and serves the command surface.
package servicekit
