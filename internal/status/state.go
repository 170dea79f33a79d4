package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tradewell/twchat/internal/bus"
)

// State is a gateway connection lifecycle state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Ready, AuthRequired, Reconnecting, Error},
	Ready:        {Reconnecting, AuthRequired, Error},
	Reconnecting: {Connecting, Ready, Error},
	Error:        {Booting, Connecting},
}

// Machine tracks the gateway connection state and rejects transitions the
// table above does not allow. Changes are published on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// Change is the payload of conn.status events.
type Change struct {
	From State
	To   State
}

// NewMachine creates a machine in the Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state, or reports why it cannot.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    bus.KindConnStatus,
			At:      time.Now(),
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}
