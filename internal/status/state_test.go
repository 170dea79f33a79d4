package status

import (
	"testing"
	"time"

	"github.com/tradewell/twchat/internal/bus"
)

func TestHappyPathTransitions(t *testing.T) {
	m := NewMachine(nil)

	for _, s := range []State{Connecting, Ready, Reconnecting, Connecting, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if m.Current() != Ready {
		t.Errorf("current = %s, want READY", m.Current())
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := NewMachine(nil)

	if err := m.Transition(Reconnecting); err == nil {
		t.Error("BOOTING -> RECONNECTING should be rejected")
	}
	if m.Current() != Booting {
		t.Errorf("state changed on rejected transition: %s", m.Current())
	}
}

func TestSelfTransitionIsNoOp(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Booting); err != nil {
		t.Errorf("self transition should be a no-op, got %v", err)
	}
}

func TestTransitionPublishesChange(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)

	ch, cancel := b.Subscribe(bus.KindConnStatus, 10)
	defer cancel()

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload = %T, want Change", evt.Payload)
		}
		if change.From != Booting || change.To != Connecting {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for conn.status event")
	}
}
