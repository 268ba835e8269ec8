package endpoint

import "context"

// Handler processes one payload arriving at an endpoint
type Handler func(ctx context.Context, payload any) (any, error)

// Interceptor wraps the traffic passing through an endpoint. It may inspect
// or replace the payload, short-circuit, or call next to continue the chain.
type Interceptor interface {
	Type() string
	Intercept(ctx context.Context, ep *Endpoint, payload any, next Handler) (any, error)
}

// InterceptorFunc adapts a function to the Interceptor interface
type InterceptorFunc struct {
	Name string
	Fn   func(ctx context.Context, ep *Endpoint, payload any, next Handler) (any, error)
}

// Type returns the interceptor name
func (f InterceptorFunc) Type() string {
	return f.Name
}

// Intercept calls the wrapped function
func (f InterceptorFunc) Intercept(ctx context.Context, ep *Endpoint, payload any, next Handler) (any, error) {
	return f.Fn(ctx, ep, payload, next)
}

// chain builds the handler that runs interceptors in order before terminal
func chain(ep *Endpoint, interceptors []Interceptor, terminal Handler) Handler {
	h := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor, next := interceptors[i], h
		h = func(ctx context.Context, payload any) (any, error) {
			return interceptor.Intercept(ctx, ep, payload, next)
		}
	}
	return h
}
