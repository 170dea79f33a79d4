package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/model"
	"github.com/tradewell/twchat/internal/status"
)

func testStream(t *testing.T) (*Stream, <-chan bus.Event) {
	t.Helper()
	b := bus.New()
	ch, cancel := b.Subscribe("gw.", 10)
	t.Cleanup(cancel)
	return NewStream("ws://unused", "tok", b, status.NewMachine(b), nil), ch
}

func recvEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bus event")
		return bus.Event{}
	}
}

func TestHandleNextRoutesMessage(t *testing.T) {
	s, ch := testStream(t)

	s.handleNext(opMessages, json.RawMessage(`{"data":{"messageReceived":
		{"id":"m1","chatId":"c1","sender":{"id":"u2"},"content":"hi","createdAt":"2024-03-01T10:00:00Z"}}}`))

	evt := recvEvent(t, ch)
	if evt.Kind != bus.KindGatewayMessage {
		t.Fatalf("kind = %q", evt.Kind)
	}
	msg, ok := evt.Payload.(*model.Message)
	if !ok || msg.ID != "m1" {
		t.Errorf("payload = %#v", evt.Payload)
	}
}

func TestHandleNextRoutesTypingAndPresence(t *testing.T) {
	s, ch := testStream(t)

	s.handleNext(opTyping, json.RawMessage(`{"data":{"typingChanged":{"chatId":"c1","user":{"id":"u2"},"isTyping":true}}}`))
	evt := recvEvent(t, ch)
	if evt.Kind != bus.KindGatewayTyping {
		t.Fatalf("kind = %q", evt.Kind)
	}
	if te := evt.Payload.(model.TypingEvent); !te.IsTyping || te.UserID != "u2" {
		t.Errorf("payload = %+v", te)
	}

	s.handleNext(opPresence, json.RawMessage(`{"data":{"presenceChanged":{"userId":"u2","isOnline":true}}}`))
	evt = recvEvent(t, ch)
	if evt.Kind != bus.KindGatewayPresence {
		t.Fatalf("kind = %q", evt.Kind)
	}
}

func TestHandleNextDropsInvalidPayloads(t *testing.T) {
	s, ch := testStream(t)

	// Message without an ID, typing without a user, garbage frame.
	s.handleNext(opMessages, json.RawMessage(`{"data":{"messageReceived":{"sender":{"id":"u2"}}}}`))
	s.handleNext(opTyping, json.RawMessage(`{"data":{"typingChanged":{"chatId":"c1"}}}`))
	s.handleNext(opMessages, json.RawMessage(`{{`))
	s.handleNext("unknown-op", json.RawMessage(`{"data":{}}`))

	select {
	case evt := <-ch:
		t.Errorf("invalid payload published: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}
