package presence

import (
	"sync"
	"time"

	"github.com/tradewell/twchat/internal/model"
)

// TypingTTL bounds how long a typing indicator stays lit without a
// refreshing event. Guards against a counterparty whose "stopped typing"
// event was lost.
const TypingTTL = 10 * time.Second

type typingEntry struct {
	userID  string
	expires time.Time
}

// Tracker holds the latest presence snapshot per user and the counterparty
// typing flag per conversation. It stores only what it is handed; refresh
// cadence and retry belong to the gateway.
type Tracker struct {
	mu        sync.RWMutex
	snapshots map[string]model.Presence
	typing    map[string]typingEntry

	now func() time.Time
	ttl time.Duration
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		snapshots: make(map[string]model.Presence),
		typing:    make(map[string]typingEntry),
		now:       time.Now,
		ttl:       TypingTTL,
	}
}

// SetPresence records the latest snapshot for a user, replacing any
// previous one.
func (t *Tracker) SetPresence(p model.Presence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[p.UserID] = p
}

// Presence returns the latest snapshot for a user.
func (t *Tracker) Presence(userID string) (model.Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.snapshots[userID]
	return p, ok
}

// SetTyping applies a typing-state change for a conversation. A start
// refreshes the TTL; a stop from the same user clears the flag. Stops from
// a different user than the one currently typing are ignored.
func (t *Tracker) SetTyping(evt model.TypingEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if evt.IsTyping {
		t.typing[evt.ConversationID] = typingEntry{
			userID:  evt.UserID,
			expires: t.now().Add(t.ttl),
		}
		return
	}
	if cur, ok := t.typing[evt.ConversationID]; ok && cur.userID == evt.UserID {
		delete(t.typing, evt.ConversationID)
	}
}

// ClearTyping drops the typing flag for a conversation if it belongs to the
// given user. An incoming message from a user supersedes their typing state.
func (t *Tracker) ClearTyping(conversationID, userID string) {
	t.SetTyping(model.TypingEvent{ConversationID: conversationID, UserID: userID, IsTyping: false})
}

// Typing reports whether the counterparty in a conversation is currently
// typing. Expired entries are pruned lazily.
func (t *Tracker) Typing(conversationID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.typing[conversationID]
	if !ok {
		return "", false
	}
	if t.now().After(entry.expires) {
		delete(t.typing, conversationID)
		return "", false
	}
	return entry.userID, true
}
