package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/health"
	"github.com/Kronos-Integration/service-sub000/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need an established connection
var ErrNotConnected = stderrors.New("not connected to NATS")

// Client owns one NATS connection. Connect establishes it with backoff;
// afterwards the nats.go reconnect logic keeps it alive.
type Client struct {
	urls          []string
	name          string
	logger        *slog.Logger
	retry         retry.Config
	timeout       time.Duration
	reconnectWait time.Duration
	maxReconnects int

	status   atomic.Int32
	failures atomic.Int32

	mu   sync.RWMutex
	conn *nats.Conn
}

// NewClient creates a disconnected client for the given server URLs
func NewClient(urls []string, opts ...ClientOption) (*Client, error) {
	var servers []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			servers = append(servers, u)
		}
	}
	if len(servers) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no NATS server URL", errors.ErrMissingConfig),
			"Client", "NewClient", "url check")
	}

	c := &Client{
		urls:          servers,
		name:          "servicekit",
		logger:        slog.Default(),
		retry:         retry.Connect(),
		timeout:       5 * time.Second,
		reconnectWait: 2 * time.Second,
		maxReconnects: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "nats", "servers", strings.Join(c.urls, ","))
	return c, nil
}

// Status returns the connection status
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// Failures returns the number of failed connection attempts
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
}

func (c *Client) options() []nats.Option {
	return []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
}

// Connect establishes the connection, retrying with backoff until it
// succeeds, the attempts are exhausted or ctx is done
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusConnected {
		return nil
	}
	c.setStatus(StatusConnecting)

	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("NATS connection attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
	}

	conn, err := retry.DoWithResult(ctx, cfg, func() (*nats.Conn, error) {
		conn, err := nats.Connect(strings.Join(c.urls, ","), c.options()...)
		if err != nil {
			c.failures.Add(1)
		}
		return conn, err
	})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setStatus(StatusConnected)

	c.logger.Info("Connected to NATS", "server", conn.ConnectedUrl())
	return nil
}

// Conn returns the established connection
func (c *Client) Conn() (*nats.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "Conn", "connection check")
	}
	return c.conn, nil
}

// Subscribe registers handler for subject
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	conn, err := c.Conn()
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "subscribe to "+subject)
	}
	return sub, nil
}

// Request sends data to subject and waits for the reply until ctx is done
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn, err := c.Conn()
	if err != nil {
		return nil, err
	}
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Request", "request on "+subject)
	}
	return msg.Data, nil
}

// Health reports the connection as a health status
func (c *Client) Health() health.Status {
	switch c.Status() {
	case StatusConnected:
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if rtt, err := conn.RTT(); err == nil {
			return health.NewHealthy("nats", fmt.Sprintf("Connected (RTT: %v)", rtt))
		}
		return health.NewHealthy("nats", "Connected")
	case StatusReconnecting:
		return health.NewDegraded("nats", "Reconnecting")
	default:
		return health.NewUnhealthy("nats",
			fmt.Sprintf("%s (failures: %d)", c.Status(), c.Failures()))
	}
}

// Close drains the connection, falling back to a hard close when ctx ends
// first
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		c.setStatus(StatusClosed)
		return nil
	}

	closed := make(chan struct{})
	conn.SetClosedHandler(func(*nats.Conn) {
		close(closed)
	})
	if err := conn.Drain(); err != nil {
		conn.Close()
		c.setStatus(StatusClosed)
		return errors.Wrap(err, "Client", "Close", "drain connection")
	}

	select {
	case <-closed:
	case <-ctx.Done():
		conn.Close()
	}
	c.setStatus(StatusClosed)
	c.logger.Debug("NATS connection closed")
	return nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.Status() == StatusClosed {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.setStatus(StatusConnected)
	c.logger.Info("NATS reconnected", "server", conn.ConnectedUrl())
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusClosed)
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		c.logger.Error("NATS subscription error", "subject", sub.Subject, "error", err)
		return
	}
	c.logger.Error("NATS error", "error", err)
}
