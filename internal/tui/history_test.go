package tui

import (
	"testing"

	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/model"
)

func TestConversationFromCache(t *testing.T) {
	self := model.User{ID: "me", Name: "Me"}
	row := &cache.Conversation{
		ID:               "c1",
		CounterpartyID:   "u2",
		CounterpartyName: "Alice",
	}
	// Newest-first, as ListMessages returns them.
	rows := []cache.Message{
		{ConversationID: "c1", MsgID: "m2", SenderID: "u2", Body: "second", CreatedAt: 2000},
		{ConversationID: "c1", MsgID: "m1", SenderID: "me", Body: "first", CreatedAt: 1000},
	}

	conv := conversationFromCache(self, row, rows)

	if conv.ID != "c1" {
		t.Errorf("ID = %q", conv.ID)
	}
	if got := conv.Counterparty("me"); got.ID != "u2" || got.Name != "Alice" {
		t.Errorf("counterparty = %+v", got)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[0].ID != "m1" || conv.Messages[1].ID != "m2" {
		t.Errorf("order = %q, %q; want oldest first", conv.Messages[0].ID, conv.Messages[1].ID)
	}
}

func TestConversationFromCacheEmptyHistory(t *testing.T) {
	conv := conversationFromCache(model.User{ID: "me"}, &cache.Conversation{ID: "c1", CounterpartyID: "u2"}, nil)
	if len(conv.Messages) != 0 {
		t.Errorf("got %d messages, want 0", len(conv.Messages))
	}
}
