// Package retry runs operations with exponential backoff.
//
// The transports use it to establish their connections during startup:
//
//	cfg := retry.Connect()
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("NATS connect failed", "attempt", attempt, "retry_in", delay, "error", err)
//	}
//	conn, err := retry.DoWithResult(ctx, cfg, func() (*nats.Conn, error) {
//	    return nats.Connect(url)
//	})
//
// A failure wrapped with Permanent stops the loop at once. Config.Retryable
// narrows which failures are retried, errors.IsTransient being the usual
// choice.
package retry
