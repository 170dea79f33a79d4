package gateway

import (
	"encoding/json"
	"time"

	"github.com/tradewell/twchat/internal/model"
)

// Wire shapes as the gateway serializes them. Realtime payloads are loosely
// typed on the wire; they are converted to strict model types here, at the
// boundary, and rejected here if malformed. Nothing past this package sees
// raw JSON.

type wireUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type wireAttachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

type wireMessage struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"chatId"`
	Sender         *wireUser        `json:"sender"`
	Content        string           `json:"content"`
	Attachments    []wireAttachment `json:"attachments"`
	CreatedAt      string           `json:"createdAt"`
	Read           bool             `json:"read"`
}

type wireTyping struct {
	ConversationID string    `json:"chatId"`
	User           *wireUser `json:"user"`
	IsTyping       bool      `json:"isTyping"`
}

type wirePresence struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
	LastSeen string `json:"lastSeen"`
}

type wireConversation struct {
	ID           string        `json:"id"`
	Participants []wireUser    `json:"participants"`
	Messages     []wireMessage `json:"messages"`
}

func (u *wireUser) toModel() model.User {
	return model.User{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// toModel converts a wire message, enforcing the fields local state depends
// on. An unparsable timestamp is not an error: the message keeps a zero
// CreatedAt, sorts last in the timeline, and the content survives.
func (w *wireMessage) toModel() (*model.Message, error) {
	if w.ID == "" {
		return nil, &model.ValidationError{Field: "id", Reason: "missing message identifier"}
	}
	if w.Sender == nil || w.Sender.ID == "" {
		return nil, &model.ValidationError{Field: "sender", Reason: "missing sender"}
	}

	m := &model.Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		Sender:         w.Sender.toModel(),
		Body:           w.Content,
		CreatedAt:      parseTime(w.CreatedAt),
		Read:           w.Read,
	}
	for _, a := range w.Attachments {
		m.Attachments = append(m.Attachments, model.Attachment{
			ID:       a.ID,
			URL:      a.URL,
			FileName: a.FileName,
			MIMEType: a.MimeType,
		})
	}
	return m, nil
}

func (w *wireTyping) toModel() (model.TypingEvent, error) {
	if w.User == nil || w.User.ID == "" {
		return model.TypingEvent{}, &model.ValidationError{Field: "user", Reason: "missing user"}
	}
	if w.ConversationID == "" {
		return model.TypingEvent{}, &model.ValidationError{Field: "chatId", Reason: "missing conversation"}
	}
	return model.TypingEvent{
		ConversationID: w.ConversationID,
		UserID:         w.User.ID,
		IsTyping:       w.IsTyping,
	}, nil
}

func (w *wirePresence) toModel() (model.Presence, error) {
	if w.UserID == "" {
		return model.Presence{}, &model.ValidationError{Field: "userId", Reason: "missing user"}
	}
	p := model.Presence{UserID: w.UserID, IsOnline: w.IsOnline}
	if ts := parseTime(w.LastSeen); !ts.IsZero() {
		p.LastSeen = &ts
	}
	return p, nil
}

func (w *wireConversation) toModel() (*model.Conversation, error) {
	if w.ID == "" {
		return nil, &model.ValidationError{Field: "id", Reason: "missing conversation identifier"}
	}
	if len(w.Participants) != 2 {
		return nil, &model.ValidationError{Field: "participants", Reason: "conversation is not two-party"}
	}

	c := &model.Conversation{ID: w.ID}
	for i := 0; i < 2; i++ {
		c.Participants[i] = w.Participants[i].toModel()
	}
	for _, wm := range w.Messages {
		m, err := wm.toModel()
		if err != nil {
			// A single bad row must not sink the whole fetch.
			continue
		}
		if m.ConversationID == "" {
			m.ConversationID = w.ID
		}
		c.Messages = append(c.Messages, *m)
	}
	return c, nil
}

// ParseMessage decodes a realtime message payload into the strict model.
func ParseMessage(raw json.RawMessage) (*model.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &model.ValidationError{Field: "message", Reason: err.Error()}
	}
	return w.toModel()
}

// ParseTyping decodes a realtime typing payload.
func ParseTyping(raw json.RawMessage) (model.TypingEvent, error) {
	var w wireTyping
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.TypingEvent{}, &model.ValidationError{Field: "typing", Reason: err.Error()}
	}
	return w.toModel()
}

// ParsePresence decodes a realtime presence payload.
func ParsePresence(raw json.RawMessage) (model.Presence, error) {
	var w wirePresence
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Presence{}, &model.ValidationError{Field: "presence", Reason: err.Error()}
	}
	return w.toModel()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
