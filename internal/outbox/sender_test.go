package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/model"
)

type sendCall struct {
	ConversationID string
	Body           string
}

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
	delay time.Duration
}

func (m *mockSender) SendMessage(_ context.Context, conversationID, body string, _ []string) (*model.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sendCall{conversationID, body})
	n := len(m.calls)
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &model.Message{
		ID:             fmt.Sprintf("srv-%d", n),
		ConversationID: conversationID,
		Sender:         model.User{ID: "me"},
		Body:           body,
		CreatedAt:      time.Now(),
	}, nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDB(t *testing.T) *cache.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := cache.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSenderDrainsQueue(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, mock, b, "me", nil)

	acks, cancel := b.Subscribe(bus.KindSendAck, 10)
	defer cancel()

	clientID, err := s.Queue("c1", "hello again")
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-acks:
		res := evt.Payload.(bus.SendResult)
		if res.ClientMsgID != clientID || res.ServerMsgID != "srv-1" {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for send.ack")
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after drain", len(pending))
	}

	// Optimistic row replaced by the server copy.
	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].MsgID != "srv-1" || msgs[0].Status != cache.StatusSent {
		t.Errorf("row = %+v", msgs[0])
	}
}

func TestSenderOptimisticRowWhileSending(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{delay: 500 * time.Millisecond}
	s := NewSender(db, mock, b, "me", nil)

	updates, cancel := b.Subscribe(bus.KindCacheMessage, 10)
	defer cancel()

	clientID, err := s.Queue("c1", "optimistic")
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for optimistic cache update")
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (optimistic insert)", len(msgs))
	}
	if msgs[0].MsgID != clientID || msgs[0].Status != cache.StatusSending {
		t.Errorf("row = %+v, want sending status under client ID", msgs[0])
	}
	if msgs[0].SenderID != "me" {
		t.Errorf("sender = %q, want me", msgs[0].SenderID)
	}
}

func TestSenderFailureParksEntry(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("gateway down")}
	s := NewSender(db, mock, b, "me", nil)

	failures, cancel := b.Subscribe(bus.KindSendFailed, 10)
	defer cancel()

	clientID, err := s.Queue("c1", "will fail")
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-failures:
		res := evt.Payload.(bus.SendResult)
		if res.ClientMsgID != clientID || res.Err == "" {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for send.failed")
	}

	// Entry parked as failed, not retried in a hot loop.
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("failed entry still pending: %+v", pending)
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != cache.StatusFailed {
		t.Errorf("rows = %+v, want one failed row", msgs)
	}

	// Requeue sends it again.
	if err := db.RequeueOutbox(clientID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Second)
	if mock.callCount() < 2 {
		t.Errorf("got %d send calls, want retry after requeue", mock.callCount())
	}
}
