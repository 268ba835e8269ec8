package natsclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/pkg/retry"
)

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = NewClient([]string{" ", ""})
	assert.Error(t, err)

	c, err := NewClient([]string{"nats://localhost:4222"})
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient([]string{"nats://localhost:4222"})
	require.NoError(t, err)

	_, err = c.Conn()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Subscribe("x", func(*nats.Msg) {})
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Request(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	status := c.Health()
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, "nats", status.Component)

	assert.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusClosed, c.Status())
}

func TestClient_ConnectRetriesThenFails(t *testing.T) {
	c, err := NewClient([]string{"nats://127.0.0.1:1"},
		WithTimeout(100*time.Millisecond),
		WithConnectRetry(retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		}))
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(3), c.Failures())
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestIntegration_RequestReply(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
	ctx := context.Background()

	server, err := StartTestServer(ctx)
	require.NoError(t, err)
	defer func() { _ = server.Stop(ctx) }()

	c, err := NewClient([]string{server.URL})
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer func() { _ = c.Close(ctx) }()

	assert.Equal(t, StatusConnected, c.Status())
	assert.True(t, c.Health().IsHealthy())

	sub, err := c.Subscribe("echo", func(msg *nats.Msg) {
		_ = msg.Respond(append([]byte("echo:"), msg.Data...))
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	reply, err := c.Request(reqCtx, "echo", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", string(reply))
}
