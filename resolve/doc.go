// Package resolve completes service and endpoint dependencies that are not
// available yet.
//
// A Context sits between the configuration and the service.Provider. It
// declares services from their configuration, waiting for factories that
// have not been registered, and it is the service.Connector every declared
// service uses to connect its endpoints:
//
//	ctx := resolve.New(provider, deps, resolve.WithFactoryTimeout(cfg.FactoryTimeout()))
//	defer ctx.Close()
//
//	if err := ctx.ApplyConfig(runCtx, cfg); err != nil {
//	    logger.Warn("Configuration partially applied", "error", err)
//	}
//
// Connections to targets that do not exist yet get a placeholder so traffic
// never fails with a missing connection. The pending pairs are retried every
// time a service is registered and whenever ResolveOutstandingEndpointConnections
// is called. ValidateEndpoints reports sending endpoints that are still
// unresolved.
//
// When a service leaves the provider its pending connections are dropped,
// and every endpoint connected to it falls back to a placeholder until a new
// holder of the name is registered.
//
// Declarations for the same name are single-flight: concurrent callers share
// one construction. Factory waits for the same type share one timer.
package resolve
