// Package config loads the runtime configuration from JSON or YAML files.
//
// A configuration names the services to declare and configures the
// administrative surface and resolution timeouts:
//
//	admin:
//	  http_addr: ":8080"
//	  nats_urls: ["nats://localhost:4222"]
//	resolution:
//	  factory_timeout: 10s
//	services:
//	  ticker:
//	    type: ticker
//	    autostart: true
//	    interval: 1s
//	    endpoints:
//	      out: service(relay).in
//	  relay:
//	    type: relay
//	    endpoints:
//	      out:
//	        connect: [service(sink).in]
//	        interceptors: [logging]
//
// Every service key other than name, type, autostart and endpoints is kept in
// ServiceConfig.Attributes and validated by the service itself. An endpoint
// definition is either a target expression or an object; an interceptor
// definition is either a type name or an object with a type key.
//
// # Loading
//
// The Loader deep-merges its layers over built-in defaults and then applies
// SERVICEKIT_HTTP_ADDR, SERVICEKIT_NATS_URLS, SERVICEKIT_COMMAND_SUBJECT and
// SERVICEKIT_FACTORY_TIMEOUT. Paths are validated (no traversal, json/yaml
// only, bounded size) before reading.
//
// # Reloading
//
// Watcher observes the layer files with fsnotify and hands every successful
// reload to an ApplyFunc, which the binary uses to re-declare services.
// Declaring an existing service reconfigures it in place.
package config
