package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/model"
	"github.com/tradewell/twchat/internal/presence"
	"github.com/tradewell/twchat/internal/timeline"
)

const (
	convID = "conv-1"
	meID   = "me"
	themID = "them"
)

type fakeReceipter struct {
	mu    sync.Mutex
	ids   []string
	calls chan string
}

func newFakeReceipter() *fakeReceipter {
	return &fakeReceipter{calls: make(chan string, 16)}
}

func (f *fakeReceipter) MarkMessageRead(_ context.Context, messageID string) error {
	f.mu.Lock()
	f.ids = append(f.ids, messageID)
	f.mu.Unlock()
	f.calls <- messageID
	return nil
}

func (f *fakeReceipter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

type fixture struct {
	bus      *bus.Bus
	store    *timeline.Store
	tracker  *presence.Tracker
	receipts *fakeReceipter
	ctrl     *Controller
	updates  <-chan bus.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.New()
	st := timeline.NewStore(nil)
	tr := presence.NewTracker()
	rc := newFakeReceipter()
	ctrl := NewController(convID, meID, st, tr, b, rc, nil)

	updates, cancel := b.Subscribe("timeline.", 64)
	t.Cleanup(cancel)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctrl.Close)

	return &fixture{bus: b, store: st, tracker: tr, receipts: rc, ctrl: ctrl, updates: updates}
}

func (f *fixture) pushMessage(id, senderID string) {
	f.bus.Publish(bus.Event{Kind: bus.KindGatewayMessage, Payload: &model.Message{
		ID:             id,
		ConversationID: convID,
		Sender:         model.User{ID: senderID},
		Body:           "hello",
		CreatedAt:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}})
}

func (f *fixture) awaitUpdate(t *testing.T) {
	t.Helper()
	select {
	case <-f.updates:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for timeline.updated")
	}
}

func TestIncomingMessageUpsertedAndAcked(t *testing.T) {
	f := newFixture(t)

	f.pushMessage("m1", themID)
	f.awaitUpdate(t)

	if f.store.Len() != 1 {
		t.Fatalf("store has %d messages, want 1", f.store.Len())
	}
	if !f.store.Messages()[0].Read {
		t.Error("incoming message should be marked read locally")
	}

	select {
	case id := <-f.receipts.calls:
		if id != "m1" {
			t.Errorf("receipt for %q, want m1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for read receipt")
	}
}

func TestOwnMessageNeverAcked(t *testing.T) {
	f := newFixture(t)

	f.pushMessage("m1", meID)
	f.awaitUpdate(t)

	select {
	case id := <-f.receipts.calls:
		t.Errorf("receipt sent for own message %q", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDuplicateDeliveryAckedOnce(t *testing.T) {
	f := newFixture(t)

	f.pushMessage("m1", themID)
	f.awaitUpdate(t)
	f.pushMessage("m1", themID)
	f.awaitUpdate(t)

	<-f.receipts.calls
	select {
	case id := <-f.receipts.calls:
		t.Errorf("second receipt for %q within one subscription", id)
	case <-time.After(100 * time.Millisecond):
	}

	if f.store.Len() != 1 {
		t.Errorf("store has %d messages, want 1 (idempotent upsert)", f.store.Len())
	}
	if f.receipts.count() != 1 {
		t.Errorf("got %d receipts, want 1", f.receipts.count())
	}
}

func TestOtherConversationIgnored(t *testing.T) {
	f := newFixture(t)

	f.bus.Publish(bus.Event{Kind: bus.KindGatewayMessage, Payload: &model.Message{
		ID:             "m-other",
		ConversationID: "conv-other",
		Sender:         model.User{ID: themID},
	}})

	select {
	case <-f.updates:
		t.Fatal("event for another conversation must not touch this store")
	case <-time.After(100 * time.Millisecond):
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d messages, want 0", f.store.Len())
	}
}

func TestTypingEventsTracked(t *testing.T) {
	f := newFixture(t)
	typing, cancel := f.bus.Subscribe(bus.KindTypingChanged, 16)
	defer cancel()

	f.bus.Publish(bus.Event{Kind: bus.KindGatewayTyping,
		Payload: model.TypingEvent{ConversationID: convID, UserID: themID, IsTyping: true}})

	select {
	case <-typing:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for typing.changed")
	}
	if _, ok := f.tracker.Typing(convID); !ok {
		t.Error("typing flag not set")
	}

	// Own typing echo is ignored.
	f.bus.Publish(bus.Event{Kind: bus.KindGatewayTyping,
		Payload: model.TypingEvent{ConversationID: convID, UserID: meID, IsTyping: false}})
	time.Sleep(50 * time.Millisecond)
	if _, ok := f.tracker.Typing(convID); !ok {
		t.Error("own echo must not clear the counterparty flag")
	}
}

func TestIncomingMessageSupersedesTyping(t *testing.T) {
	f := newFixture(t)

	f.bus.Publish(bus.Event{Kind: bus.KindGatewayTyping,
		Payload: model.TypingEvent{ConversationID: convID, UserID: themID, IsTyping: true}})
	f.pushMessage("m1", themID)
	f.awaitUpdate(t)

	if _, ok := f.tracker.Typing(convID); ok {
		t.Error("message from the typist should clear the typing flag")
	}
}

func TestPresenceSnapshotApplied(t *testing.T) {
	f := newFixture(t)
	changed, cancel := f.bus.Subscribe(bus.KindPresenceChanged, 16)
	defer cancel()

	f.bus.Publish(bus.Event{Kind: bus.KindGatewayPresence,
		Payload: model.Presence{UserID: themID, IsOnline: true}})

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for presence.changed")
	}
	if p, ok := f.tracker.Presence(themID); !ok || !p.IsOnline {
		t.Errorf("presence = %+v, %v", p, ok)
	}
}

func TestEventsAfterCloseIgnored(t *testing.T) {
	f := newFixture(t)

	f.ctrl.Close()
	if f.ctrl.State() != Closed {
		t.Fatalf("state = %v, want Closed", f.ctrl.State())
	}

	f.pushMessage("late", themID)
	time.Sleep(100 * time.Millisecond)

	if f.store.Len() != 0 {
		t.Error("event applied after Close")
	}
}

func TestStartTwiceRejected(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.Start(context.Background()); err == nil {
		t.Error("second Start should be rejected")
	}
}

func TestIncomingMessagePublishesReadMark(t *testing.T) {
	f := newFixture(t)

	reads, cancel := f.bus.Subscribe(bus.KindMessageRead, 16)
	defer cancel()

	f.pushMessage("m1", themID)

	select {
	case evt := <-reads:
		mark, ok := evt.Payload.(bus.ReadMark)
		if !ok {
			t.Fatalf("payload = %T, want bus.ReadMark", evt.Payload)
		}
		if mark.ConversationID != convID || mark.MessageID != "m1" {
			t.Errorf("mark = %+v", mark)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for read.local event")
	}
}

func TestOwnMessageNoReadMark(t *testing.T) {
	f := newFixture(t)

	reads, cancel := f.bus.Subscribe(bus.KindMessageRead, 16)
	defer cancel()

	f.pushMessage("m1", meID)
	f.awaitUpdate(t)

	select {
	case evt := <-reads:
		t.Errorf("read mark published for own message: %+v", evt.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}
