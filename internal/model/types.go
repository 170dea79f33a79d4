package model

import "time"

// User identifies a chat participant.
type User struct {
	ID        string
	Name      string
	AvatarURL string
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID       string
	URL      string
	FileName string
	MIMEType string
}

// Message is one chat message. Messages are immutable once created except
// for the Read flag.
type Message struct {
	ID             string
	ConversationID string
	Sender         User
	Body           string
	Attachments    []Attachment
	CreatedAt      time.Time
	Read           bool
}

// Validate checks the fields the timeline store depends on. A message with
// no identifier or no sender cannot be deduplicated or grouped.
func (m *Message) Validate() error {
	if m.ID == "" {
		return &ValidationError{Field: "id", Reason: "missing message identifier"}
	}
	if m.Sender.ID == "" {
		return &ValidationError{Field: "sender", Reason: "missing sender identifier"}
	}
	return nil
}

// Conversation is a two-party message thread.
type Conversation struct {
	ID           string
	Participants [2]User
	Messages     []Message
}

// Counterparty returns the participant that is not the given user.
func (c *Conversation) Counterparty(currentUserID string) User {
	if c.Participants[0].ID == currentUserID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// TypingEvent is a realtime typing-state change for one user in one
// conversation.
type TypingEvent struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}

// Presence is the latest known online/offline snapshot for a user.
// LastSeen is nil when the platform has never seen the user.
type Presence struct {
	UserID   string
	IsOnline bool
	LastSeen *time.Time
}
