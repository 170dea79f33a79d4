package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/model"
)

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

func incoming(id string, at time.Time) *model.Message {
	return &model.Message{
		ID:             id,
		ConversationID: "c1",
		Sender:         model.User{ID: "u2", Name: "Alice"},
		Body:           "body " + id,
		CreatedAt:      at,
	}
}

func TestIngestMessage(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	ch, cancel := b.Subscribe(bus.KindCacheMessage, 10)
	defer cancel()

	if err := e.IngestMessage(incoming("m1", time.UnixMilli(1000))); err != nil {
		t.Fatal(err)
	}

	conv, err := db.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil {
		t.Fatal("conversation row not auto-created")
	}
	if conv.LastMessagePreview != "body m1" {
		t.Errorf("preview = %q", conv.LastMessagePreview)
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "body m1" {
		t.Errorf("got %d messages", len(msgs))
	}

	select {
	case evt := <-ch:
		if evt.Payload != "c1" {
			t.Errorf("payload = %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cache.message event")
	}
}

func TestIngestMessageIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	m := incoming("m1", time.UnixMilli(1000))
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}

func TestIngestConversationSnapshot(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	conv := &model.Conversation{
		ID: "c1",
		Participants: [2]model.User{
			{ID: "me", Name: "Me"},
			{ID: "u2", Name: "Alice", AvatarURL: "https://cdn/a.png"},
		},
		Messages: []model.Message{
			*incoming("m1", time.UnixMilli(1000)),
			*incoming("m2", time.UnixMilli(2000)),
		},
	}
	if err := e.IngestConversation(conv, "me"); err != nil {
		t.Fatal(err)
	}

	row, err := db.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if row.CounterpartyID != "u2" || row.CounterpartyName != "Alice" {
		t.Errorf("counterparty = %+v", row)
	}
	if row.LastMessageAt != 2000 || row.LastMessagePreview != "body m2" {
		t.Errorf("last message = %d %q", row.LastMessageAt, row.LastMessagePreview)
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want 2", len(msgs))
	}
}

func TestEngineConsumesBusEvents(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	done, cancel := b.Subscribe(bus.KindCacheMessage, 10)
	defer cancel()

	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{Kind: bus.KindGatewayMessage, Payload: incoming("m1", time.UnixMilli(1000))})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ingestion")
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
}

func TestAttachmentOnlyPreview(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	m := incoming("m1", time.UnixMilli(1000))
	m.Body = ""
	m.Attachments = []model.Attachment{{ID: "a1", FileName: "invoice.pdf"}}
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}

	conv, err := db.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessagePreview != "[invoice.pdf]" {
		t.Errorf("preview = %q", conv.LastMessagePreview)
	}
}

func TestEngineMirrorsLocalReadMarks(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	done, cancel := b.Subscribe(bus.KindCacheMessage, 10)
	defer cancel()

	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{Kind: bus.KindGatewayMessage, Payload: incoming("m1", time.UnixMilli(1000))})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ingestion")
	}

	b.Publish(bus.Event{Kind: bus.KindMessageRead, Payload: bus.ReadMark{
		ConversationID: "c1",
		MessageID:      "m1",
	}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, err := db.ListMessages("c1", 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == 1 && msgs[0].Read {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("cached row never marked read")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
