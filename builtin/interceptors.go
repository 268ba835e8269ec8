package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Kronos-Integration/service-sub000/config"
	"github.com/Kronos-Integration/service-sub000/endpoint"
	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/service"
)

// Interceptor types
const (
	LoggingInterceptorType   = "logging"
	RateLimitInterceptorType = "rate-limit"
)

// LoggingInterceptor logs every payload passing an endpoint together with
// the outcome of the rest of the chain
type LoggingInterceptor struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLoggingInterceptor is the InterceptorConstructor of the logging type.
// The optional level attribute selects the record level, info by default.
func NewLoggingInterceptor(attrs map[string]any, deps *service.Dependencies) (endpoint.Interceptor, error) {
	var level slog.Level
	if raw := config.GetString(attrs, "level", ""); raw != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
			return nil, errors.WrapInvalid(err, "LoggingInterceptor", "New", "level parsing")
		}
	}

	logger := slog.Default()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}
	return &LoggingInterceptor{logger: logger.With("interceptor", LoggingInterceptorType), level: level}, nil
}

// Type implements endpoint.Interceptor
func (l *LoggingInterceptor) Type() string {
	return LoggingInterceptorType
}

// Intercept implements endpoint.Interceptor
func (l *LoggingInterceptor) Intercept(ctx context.Context, ep *endpoint.Endpoint, payload any, next endpoint.Handler) (any, error) {
	result, err := next(ctx, payload)
	if err != nil {
		l.logger.Log(ctx, l.level, "Payload failed", "endpoint", ep.Identifier(),
			"payload_type", fmt.Sprintf("%T", payload), "error", err)
		return result, err
	}
	l.logger.Log(ctx, l.level, "Payload passed", "endpoint", ep.Identifier(),
		"payload_type", fmt.Sprintf("%T", payload))
	return result, nil
}

// RateLimitInterceptor drops payloads above a token bucket rate
type RateLimitInterceptor struct {
	limiter *rate.Limiter
}

// NewRateLimitInterceptor is the InterceptorConstructor of the rate-limit
// type. Attributes: rate (payloads per second, required) and burst (default 1).
func NewRateLimitInterceptor(attrs map[string]any, _ *service.Dependencies) (endpoint.Interceptor, error) {
	limit := config.GetFloat64(attrs, "rate", 0)
	if limit <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: rate must be a positive number", errors.ErrInvalidConfig),
			"RateLimitInterceptor", "New", "rate check")
	}
	burst := config.GetInt(attrs, "burst", 1)
	if burst < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: burst must be at least 1", errors.ErrInvalidConfig),
			"RateLimitInterceptor", "New", "burst check")
	}
	return &RateLimitInterceptor{limiter: rate.NewLimiter(rate.Limit(limit), burst)}, nil
}

// Type implements endpoint.Interceptor
func (r *RateLimitInterceptor) Type() string {
	return RateLimitInterceptorType
}

// Intercept implements endpoint.Interceptor
func (r *RateLimitInterceptor) Intercept(ctx context.Context, ep *endpoint.Endpoint, payload any, next endpoint.Handler) (any, error) {
	if !r.limiter.Allow() {
		return nil, errors.WrapTransient(errors.ErrRateLimited, ep.Identifier(), "Intercept", "rate limit")
	}
	return next(ctx, payload)
}
