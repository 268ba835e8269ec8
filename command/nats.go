package command

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/natsclient"
)

// DefaultNATSTimeout bounds the execution of one NATS command
const DefaultNATSTimeout = 30 * time.Second

// NATSResponder answers command requests published on one subject
type NATSResponder struct {
	client     *natsclient.Client
	subject    string
	dispatcher *Dispatcher
	timeout    time.Duration
	logger     *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNATSResponder creates a responder for subject. A non-positive timeout
// selects DefaultNATSTimeout.
func NewNATSResponder(client *natsclient.Client, subject string, d *Dispatcher, timeout time.Duration) *NATSResponder {
	if timeout <= 0 {
		timeout = DefaultNATSTimeout
	}
	return &NATSResponder{
		client:     client,
		subject:    subject,
		dispatcher: d,
		timeout:    timeout,
		logger:     d.logger.With("transport", TransportNATS, "subject", subject),
	}
}

// Start subscribes to the command subject
func (r *NATSResponder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return nil
	}
	sub, err := r.client.Subscribe(r.subject, r.handle)
	if err != nil {
		return errors.Wrap(err, "NATSResponder", "Start", "subscribe")
	}
	r.sub = sub
	r.logger.Info("NATS command surface listening")
	return nil
}

// Stop removes the subscription after pending requests are answered
func (r *NATSResponder) Stop() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
		return errors.Wrap(err, "NATSResponder", "Stop", "drain subscription")
	}
	return nil
}

func (r *NATSResponder) handle(msg *nats.Msg) {
	var resp Response

	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		err = errors.WrapInvalid(err, "NATSResponder", "handle", "request decoding")
		resp = Response{Error: err.Error(), Code: ErrorCode(err)}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		result, err := r.dispatcher.execute(ctx, TransportNATS, req)
		cancel()
		if err != nil {
			resp = Response{Error: err.Error(), Code: ErrorCode(err)}
		} else {
			resp = Response{Result: result}
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("Failed to marshal command response", "error", err)
		data, _ = json.Marshal(Response{Error: err.Error(), Code: "failed"})
	}
	if err := msg.Respond(data); err != nil {
		r.logger.Error("Failed to send command response", "error", err)
	}
}

// SendNATS publishes req on subject and decodes the reply
func SendNATS(ctx context.Context, client *natsclient.Client, subject string, req Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WrapInvalid(err, "command", "SendNATS", "request encoding")
	}
	reply, err := client.Request(ctx, subject, data)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, errors.WrapInvalid(err, "command", "SendNATS", "response decoding")
	}
	return &resp, nil
}
