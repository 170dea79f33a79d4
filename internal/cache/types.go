package cache

import (
	"encoding/json"
	"time"

	"github.com/tradewell/twchat/internal/model"
)

// Message statuses as stored in the cache. Incoming messages are
// "received"; the outbox path moves its optimistic rows through
// sending/sent/failed.
const (
	StatusReceived = "received"
	StatusSending  = "sending"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Conversation is a cached conversation row, denormalized for the list
// view.
type Conversation struct {
	ID                    string
	CounterpartyID        string
	CounterpartyName      string
	CounterpartyAvatarURL string
	LastMessageAt         int64
	LastMessagePreview    string
}

// Message is a cached message row. Attachments are carried as JSON in a
// single column; timestamps are unix milliseconds.
type Message struct {
	RowID          int64
	ConversationID string
	MsgID          string
	SenderID       string
	SenderName     string
	Body           string
	Attachments    []model.Attachment
	Status         string
	Read           bool
	CreatedAt      int64
}

// SearchResult holds a matched message with its snippet.
type SearchResult struct {
	Message Message
	Snippet string
}

// FromModel converts a gateway message into a cache row.
func FromModel(m *model.Message) *Message {
	row := &Message{
		ConversationID: m.ConversationID,
		MsgID:          m.ID,
		SenderID:       m.Sender.ID,
		SenderName:     m.Sender.Name,
		Body:           m.Body,
		Attachments:    m.Attachments,
		Status:         StatusReceived,
		Read:           m.Read,
	}
	if !m.CreatedAt.IsZero() {
		row.CreatedAt = m.CreatedAt.UnixMilli()
	}
	return row
}

// ToModel converts a cache row back into the domain shape.
func (m *Message) ToModel() model.Message {
	out := model.Message{
		ID:             m.MsgID,
		ConversationID: m.ConversationID,
		Sender:         model.User{ID: m.SenderID, Name: m.SenderName},
		Body:           m.Body,
		Attachments:    m.Attachments,
		Read:           m.Read,
	}
	if m.CreatedAt > 0 {
		out.CreatedAt = time.UnixMilli(m.CreatedAt).UTC()
	}
	return out
}

func encodeAttachments(atts []model.Attachment) string {
	if len(atts) == 0 {
		return "[]"
	}
	data, err := json.Marshal(atts)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeAttachments(data string) []model.Attachment {
	if data == "" || data == "[]" {
		return nil
	}
	var atts []model.Attachment
	if err := json.Unmarshal([]byte(data), &atts); err != nil {
		return nil
	}
	return atts
}
