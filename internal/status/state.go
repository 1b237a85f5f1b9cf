package status

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/provider"
)

// State represents the daemon's view of provider health.
type State string

const (
	Booting  State = "BOOTING"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Stopped  State = "STOPPED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Ready, Degraded, Stopped},
	Ready:    {Degraded, Stopped},
	Degraded: {Ready, Stopped},
	Stopped:  {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu        sync.RWMutex
	current   State
	lastError string
	// failing maps each handle whose latest pass found the provider
	// unavailable to that error.
	failing map[string]string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		failing: make(map[string]string),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LastError returns the provider failure that caused the latest DEGRADED state.
func (m *Machine) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if to == Booting {
		clear(m.failing)
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Observe folds one sync outcome into the health state. The machine is
// DEGRADED while any handle's latest pass found the provider unavailable and
// READY once none does, whatever order a sweep's outcomes arrive in. A thread
// the provider no longer knows counts as healthy; other errors are local and
// leave the state alone. Outcomes arriving after Stop are ignored.
func (m *Machine) Observe(o bus.SyncOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == Stopped {
		return
	}
	switch {
	case errors.Is(o.Err, provider.ErrProviderUnavailable):
		m.failing[o.Handle] = o.Err.Error()
		m.lastError = o.Err.Error()
	case o.Err == nil || errors.Is(o.Err, provider.ErrThreadNotFound):
		delete(m.failing, o.Handle)
	default:
		return
	}
	m.settleLocked()
}

// Forget drops handle from the health picture, as when its mirror is erased
// and no further passes will report on it.
func (m *Machine) Forget(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.failing[handle]; !ok || m.current == Stopped {
		return
	}
	delete(m.failing, handle)
	m.settleLocked()
}

// Failing returns how many handles currently see the provider unavailable.
func (m *Machine) Failing() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.failing)
}

func (m *Machine) settleLocked() {
	if len(m.failing) > 0 {
		if m.current != Degraded {
			_ = m.transitionLocked(Degraded)
		}
		return
	}
	m.lastError = ""
	if m.current != Ready {
		_ = m.transitionLocked(Ready)
	}
}

// Watch feeds sync outcomes and erasures from the bus into the machine
// until ctx is done. An outcome lost to a full buffer is corrected by the
// next pass over the same handle.
func (m *Machine) Watch(ctx context.Context) {
	if m.bus == nil {
		return
	}
	ch, unsub := m.bus.Subscribe("mirror.", 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				switch p := evt.Payload.(type) {
				case bus.SyncOutcome:
					m.Observe(p)
				case bus.ThreadChange:
					if p.Deleted > 0 {
						m.Forget(p.Handle)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
