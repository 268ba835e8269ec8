package natsclient

import (
	"log/slog"
	"time"

	"github.com/Kronos-Integration/service-sub000/pkg/retry"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName sets the connection name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithConnectRetry sets the backoff used by Connect
func WithConnectRetry(cfg retry.Config) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithTimeout sets the dial timeout of a single connection attempt
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReconnect sets the reconnect policy of an established connection.
// A negative max reconnects forever.
func WithReconnect(maxReconnects int, wait time.Duration) ClientOption {
	return func(c *Client) {
		c.maxReconnects = maxReconnects
		if wait > 0 {
			c.reconnectWait = wait
		}
	}
}
