package natsfeed

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// JetStream publishes relay messages to a NATS JetStream stream.
type JetStream struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials url and opens a JetStream context.
func Connect(url string) (*JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("mirrord"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &JetStream{nc: nc, js: js}, nil
}

// EnsureStream creates the named stream over subjects unless it already exists.
func (j *JetStream) EnsureStream(name string, subjects []string) error {
	if info, err := j.js.StreamInfo(name); err == nil && info != nil {
		return nil
	}
	_, err := j.js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	return nil
}

// Publish sends payload with msgID as the JetStream dedup key.
func (j *JetStream) Publish(subject string, payload []byte, msgID string) error {
	if _, err := j.js.Publish(subject, payload, nats.MsgId(msgID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (j *JetStream) Close() {
	if j != nil && j.nc != nil {
		_ = j.nc.Drain()
	}
}
