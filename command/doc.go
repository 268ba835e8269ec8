// Package command is the administrative surface of the runtime.
//
// A Dispatcher executes Requests against a service.Provider:
//
//	{"action": "list"}
//	{"action": "get", "service": "relay", "options": {"validate": true}}
//	{"action": "start", "service": "relay"}
//
// The actions are list, get, start, stop and restart. An unknown action fails
// with errors.ErrUnknownCommand, an unknown service with
// errors.ErrUnknownService. The provider itself is addressed by its own name.
//
// Two transports carry requests: NewHTTPHandler serves them over HTTP next
// to the health and metrics endpoints, and NATSResponder answers them as
// NATS request/reply on a configurable subject. Both report failures as a
// Response with an error code, which HTTP also maps to a status code.
package command
