package endpoint

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/metric"
)

type testOwner string

func (o testOwner) Name() string { return string(o) }

func echo(_ context.Context, payload any) (any, error) {
	return payload, nil
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input string
		want  Direction
	}{
		{"", DirectionIn},
		{"in", DirectionIn},
		{"OUT", DirectionOut},
		{"inout", DirectionBoth},
		{"both", DirectionBoth},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseDirection("sideways")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	assert.True(t, DirectionBoth.Receives())
	assert.True(t, DirectionBoth.Sends())
	assert.False(t, DirectionIn.Sends())
	assert.False(t, DirectionOut.Receives())
}

func TestEndpoint_Connections(t *testing.T) {
	a := New("out", testOwner("a"), WithDirection(DirectionOut))
	b := New("in", testOwner("b"))

	assert.False(t, a.HasConnections())
	require.NoError(t, a.AddConnection(b))
	require.NoError(t, a.AddConnection(b))

	assert.True(t, a.IsConnected(b))
	assert.Len(t, a.Connections(), 1, "adding twice is a no-op")

	err := a.AddConnection(a)
	assert.ErrorIs(t, err, errors.ErrInvalidTarget)
	assert.False(t, a.IsConnected(a))

	a.RemoveConnection(b)
	a.RemoveConnection(b)
	assert.False(t, a.HasConnections())
}

func TestEndpoint_Identifier(t *testing.T) {
	assert.Equal(t, "svc.log", New("log", testOwner("svc")).Identifier())
	assert.Equal(t, "placeholder", NewPlaceholder(nil).Identifier())
}

func TestEndpoint_ReceiveRunsHandler(t *testing.T) {
	ep := New("in", testOwner("svc"), WithHandler(echo))

	result, err := ep.Receive(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
	assert.Equal(t, int64(1), ep.Stats().Delivered)
}

func TestEndpoint_ReceiveWithoutHandler(t *testing.T) {
	ep := New("in", testOwner("svc"))

	_, err := ep.Receive(context.Background(), "x")
	assert.ErrorIs(t, err, errors.ErrNotReceiving)
}

func TestEndpoint_Closed(t *testing.T) {
	ep := New("in", testOwner("svc"), WithHandler(echo))
	ep.Close()
	assert.False(t, ep.IsOpen())

	_, err := ep.Receive(context.Background(), "x")
	assert.ErrorIs(t, err, errors.ErrEndpointClosed)

	ep.Open()
	_, err = ep.Receive(context.Background(), "x")
	assert.NoError(t, err)
}

func TestEndpoint_OutWithoutConnection(t *testing.T) {
	ep := New("out", testOwner("svc"), WithDirection(DirectionOut))

	_, err := ep.Send(context.Background(), "x")
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.Equal(t, int64(1), ep.Stats().Failed)
}

func TestEndpoint_FanOut(t *testing.T) {
	out := New("out", testOwner("src"), WithDirection(DirectionOut))

	var seen []string
	for _, name := range []string{"a", "b"} {
		name := name
		target := New("in", testOwner(name), WithHandler(func(_ context.Context, payload any) (any, error) {
			seen = append(seen, name)
			return name, nil
		}))
		require.NoError(t, out.AddConnection(target))
	}

	result, err := out.Send(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, result)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestEndpoint_FanOutJoinsErrors(t *testing.T) {
	out := New("out", testOwner("src"), WithDirection(DirectionOut))
	boom := stderrors.New("boom")
	failing := New("in", testOwner("bad"), WithHandler(func(context.Context, any) (any, error) {
		return nil, boom
	}))
	require.NoError(t, out.AddConnection(failing))
	require.NoError(t, out.AddConnection(New("in", testOwner("good"), WithHandler(echo))))

	_, err := out.Send(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestEndpoint_SinglePrefersRealConnection(t *testing.T) {
	out := New("out", testOwner("src"), WithDirection(DirectionOut), Single(true))
	placeholder := NewPlaceholder(nil)
	require.NoError(t, out.AddConnection(placeholder))

	// only the placeholder: traffic is absorbed
	result, err := out.Send(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int64(1), placeholder.Stats().Dropped)

	var calls int
	first := New("in", testOwner("first"), WithHandler(func(context.Context, any) (any, error) {
		calls++
		return "first", nil
	}))
	second := New("in", testOwner("second"), WithHandler(func(context.Context, any) (any, error) {
		calls++
		return "second", nil
	}))
	require.NoError(t, out.AddConnection(first))
	require.NoError(t, out.AddConnection(second))

	result, err = out.Send(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "first", result)
	assert.Equal(t, 1, calls)
}

func TestEndpoint_Placeholders(t *testing.T) {
	out := New("out", testOwner("src"), WithDirection(DirectionOut))
	require.NoError(t, out.AddConnection(NewPlaceholder(nil)))

	assert.True(t, out.HasConnections())
	assert.False(t, out.HasRealConnections())

	_, err := out.Send(context.Background(), "x")
	assert.NoError(t, err, "placeholder keeps traffic from failing")

	target := New("in", testOwner("dst"), WithHandler(echo))
	require.NoError(t, out.AddConnection(target))
	assert.True(t, out.HasRealConnections())

	assert.Equal(t, 1, out.RemovePlaceholders())
	assert.Equal(t, []*Endpoint{target}, out.Connections())
}

func TestEndpoint_InterceptorOrder(t *testing.T) {
	var order []string
	tag := func(name string) Interceptor {
		return InterceptorFunc{Name: name, Fn: func(ctx context.Context, ep *Endpoint, payload any, next Handler) (any, error) {
			order = append(order, name)
			return next(ctx, payload.(string)+"+"+name)
		}}
	}

	ep := New("in", testOwner("svc"), WithHandler(echo), WithInterceptors(tag("first"), tag("second")))

	result, err := ep.Receive(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "p+first+second", result)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Len(t, ep.Interceptors(), 2)
}

func TestEndpoint_InterceptorShortCircuit(t *testing.T) {
	block := InterceptorFunc{Name: "block", Fn: func(context.Context, *Endpoint, any, Handler) (any, error) {
		return nil, errors.ErrRateLimited
	}}
	handled := false
	ep := New("in", testOwner("svc"), WithInterceptors(block), WithHandler(func(context.Context, any) (any, error) {
		handled = true
		return nil, nil
	}))

	_, err := ep.Receive(context.Background(), "x")
	assert.ErrorIs(t, err, errors.ErrRateLimited)
	assert.False(t, handled)
	assert.Equal(t, int64(1), ep.Stats().Dropped)
}

func TestEndpoint_ConfigureKeepsConnections(t *testing.T) {
	ep := New("io", testOwner("svc"))
	peer := New("in", testOwner("peer"), WithHandler(echo))
	require.NoError(t, ep.AddConnection(peer))

	ep.Configure(WithDirection(DirectionBoth), AsDefault(true), Single(true))

	assert.Equal(t, DirectionBoth, ep.Direction())
	assert.True(t, ep.IsDefault())
	assert.True(t, ep.IsSingle())
	assert.True(t, ep.IsConnected(peer))
}

func TestEndpoint_RecordsMetrics(t *testing.T) {
	m := metric.NewMetrics()
	ep := New("in", testOwner("svc"), WithHandler(echo), WithMetrics(m))

	_, err := ep.Receive(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EndpointMessages.WithLabelValues("svc", "in", "delivered")))
}
