// Package natsfeed relays thread changes from the in-process bus to NATS
// JetStream for consumers outside the daemon.
package natsfeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/mailmirror/internal/bus"
	"go.uber.org/zap"
)

// StreamName is the JetStream stream the relay writes to.
const StreamName = "MAILMIRROR"

// Publisher is the outbound side of the relay.
type Publisher interface {
	Publish(subject string, payload []byte, msgID string) error
}

// ThreadChanged is the JSON body published for every thread change.
type ThreadChanged struct {
	ID         string    `json:"id"`
	Session    string    `json:"session"`
	Handle     string    `json:"handle"`
	Inserted   int       `json:"inserted"`
	Deleted    int       `json:"deleted"`
	OccurredAt time.Time `json:"occurred_at"`
}

var eventNamespace = uuid.MustParse("6f1b9c52-3d0e-4b8e-9a57-2f0c7f4d8a11")

// Subject returns the subject thread changes of session are published on.
func Subject(session string) string {
	return "mirror." + token(session) + ".thread.changed"
}

// Subjects returns the stream subject filter covering every session.
func Subjects() []string {
	return []string{"mirror.*.thread.changed"}
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// Message builds the subject, body and dedup id for one bus event. The id is
// derived from the event so a republished event is dropped by JetStream.
func Message(session string, evt bus.Event) (subject string, payload []byte, msgID string, err error) {
	change, ok := evt.Payload.(bus.ThreadChange)
	if !ok {
		return "", nil, "", fmt.Errorf("unexpected payload %T for %s", evt.Payload, evt.Kind)
	}
	key := fmt.Sprintf("%s|%s|%d|%d|%d", session, change.Handle, change.Inserted, change.Deleted, evt.Timestamp.UnixNano())
	id := uuid.NewSHA1(eventNamespace, []byte(key)).String()
	payload, err = json.Marshal(ThreadChanged{
		ID:         id,
		Session:    session,
		Handle:     change.Handle,
		Inserted:   change.Inserted,
		Deleted:    change.Deleted,
		OccurredAt: evt.Timestamp.UTC(),
	})
	if err != nil {
		return "", nil, "", fmt.Errorf("encode thread change: %w", err)
	}
	return Subject(session), payload, id, nil
}

// Relay forwards bus.KindThreadChanged events to a Publisher. Delivery is
// at most once: an event lost to a full bus buffer or a failed publish is
// logged and not retried.
type Relay struct {
	session string
	pub     Publisher
	bus     *bus.Bus
	logger  *zap.Logger

	ch     <-chan bus.Event
	missed uint64
	unsub  func()
	stop   chan struct{}
	done   chan struct{}
}

// NewRelay creates a relay for session.
func NewRelay(session string, pub Publisher, b *bus.Bus, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{session: session, pub: pub, bus: b, logger: logger}
}

// Start subscribes to the bus and relays in the background.
func (r *Relay) Start() {
	ch, unsub := r.bus.Subscribe(bus.KindThreadChanged, 256)
	r.ch = ch
	r.unsub = unsub
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(ch)
}

// Stop unsubscribes and waits for the relay goroutine to exit. Events still
// buffered are published first.
func (r *Relay) Stop() {
	if r.unsub == nil {
		return
	}
	r.unsub()
	r.unsub = nil
	close(r.stop)
	<-r.done
}

func (r *Relay) run(ch <-chan bus.Event) {
	defer close(r.done)
	for {
		select {
		case evt := <-ch:
			r.forward(evt)
		case <-r.stop:
			for {
				select {
				case evt := <-ch:
					r.forward(evt)
				default:
					return
				}
			}
		}
	}
}

func (r *Relay) forward(evt bus.Event) {
	r.checkMissed()
	subject, payload, id, err := Message(r.session, evt)
	if err != nil {
		r.logger.Warn("skip relay event", zap.String("kind", evt.Kind), zap.Error(err))
		return
	}
	if err := r.pub.Publish(subject, payload, id); err != nil {
		r.logger.Warn("relay publish failed", zap.String("subject", subject), zap.String("msg_id", id), zap.Error(err))
		return
	}
	r.logger.Debug("relayed thread change", zap.String("subject", subject), zap.String("msg_id", id))
}

// checkMissed warns when the bus dropped events meant for the relay since
// the last check.
func (r *Relay) checkMissed() {
	m := r.bus.Missed(r.ch)
	if m <= r.missed {
		return
	}
	r.logger.Warn("relay missed thread changes, bus buffer full",
		zap.Uint64("missed", m-r.missed), zap.Uint64("missed_total", m))
	r.missed = m
}
