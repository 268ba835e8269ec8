package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// PermanentError marks a failure that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that Do returns it without another attempt
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Config describes an exponential backoff policy
type Config struct {
	MaxAttempts  int           // total attempts, at least one
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // upper bound for any delay
	Multiplier   float64       // growth factor per attempt
	Jitter       float64       // fraction of the delay added at random, 0 to 1

	// Retryable decides whether a failure is worth another attempt. Nil
	// retries everything that is not Permanent.
	Retryable func(err error) bool

	// OnRetry is called before sleeping for the next attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig retries three times between 100ms and 5s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.25,
	}
}

// Connect suits establishing connections during process startup
func Connect() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   1.5,
		Jitter:       0.25,
	}
}

func (c Config) normalized() (Config, error) {
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 {
		return c, errors.New("retry: negative delay or multiplier")
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return c, errors.New("retry: jitter must be within [0, 1]")
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

// Delay returns the backoff before attempt+1, jitter excluded
func (c Config) Delay(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
		if delay >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(delay)
}

func (c Config) withJitter(d time.Duration) time.Duration {
	if c.Jitter == 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*c.Jitter*float64(d))
}

// Do runs fn until it succeeds, fails permanently, exhausts the attempts or
// ctx is done
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalized()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}

		delay := cfg.withJitter(cfg.Delay(attempt))
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}
}

// DoWithResult is Do for functions that produce a value
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
