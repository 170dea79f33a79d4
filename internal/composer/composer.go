package composer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tradewell/twchat/internal/model"
	"go.uber.org/zap"
)

// ErrEmptyDraft is returned by Send when the trimmed draft is empty. No
// outbound call is made in that case.
var ErrEmptyDraft = errors.New("draft is empty")

// TypingNotifier signals the current user's typing state to the platform.
type TypingNotifier interface {
	SetTyping(ctx context.Context, conversationID string, typing bool) error
}

// MessageSender delivers a finished draft to the platform.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, body string, attachmentIDs []string) (*model.Message, error)
}

// Composer holds the in-flight draft for one conversation and owns the
// outbound typing signal. A "started" signal is emitted the moment the
// draft turns non-blank and a "stopped" on the way back, on a successful
// send, and on Close. The counterparty must never be left with a stuck
// typing indicator.
type Composer struct {
	mu             sync.Mutex
	conversationID string
	draft          string
	typing         bool
	closed         bool

	notifier TypingNotifier
	sender   MessageSender
	logger   *zap.Logger
}

// New creates a composer for one conversation. logger may be nil.
func New(conversationID string, sender MessageSender, notifier TypingNotifier, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		conversationID: conversationID,
		sender:         sender,
		notifier:       notifier,
		logger:         logger,
	}
}

// SetDraft replaces the draft text and emits a typing signal if the draft
// crossed the blank/non-blank edge. Signal failures are logged; the local
// state transitions regardless so the edge is not re-emitted.
func (c *Composer) SetDraft(ctx context.Context, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.draft = text

	nonBlank := strings.TrimSpace(text) != ""
	switch {
	case nonBlank && !c.typing:
		c.typing = true
		c.notify(ctx, true)
	case !nonBlank && c.typing:
		c.typing = false
		c.notify(ctx, false)
	}
}

// Draft returns the current draft text.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Typing reports whether a "started" signal is currently outstanding.
func (c *Composer) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Send trims and sends the draft. An all-whitespace draft is rejected with
// ErrEmptyDraft and no outbound call. On success the draft is cleared and
// the typing signal reset; on failure the draft is preserved so the user
// does not lose their message. Keystrokes that land while the send is in
// flight survive: the draft is only cleared if it still matches the
// snapshot that was sent.
func (c *Composer) Send(ctx context.Context, attachmentIDs []string) (*model.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("composer is closed")
	}
	snapshot := c.draft
	c.mu.Unlock()

	body := strings.TrimSpace(snapshot)
	if body == "" && len(attachmentIDs) == 0 {
		return nil, ErrEmptyDraft
	}

	msg, err := c.sender.SendMessage(ctx, c.conversationID, body, attachmentIDs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.draft == snapshot {
		c.draft = ""
		if c.typing {
			c.typing = false
			c.notify(ctx, false)
		}
	}
	c.mu.Unlock()
	return msg, nil
}

// Close tears the composer down, emitting a final "stopped" signal if one
// is outstanding. Idempotent.
func (c *Composer) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.typing {
		c.typing = false
		c.notify(ctx, false)
	}
}

// notify is called with c.mu held.
func (c *Composer) notify(ctx context.Context, typing bool) {
	if err := c.notifier.SetTyping(ctx, c.conversationID, typing); err != nil {
		c.logger.Warn("typing signal failed",
			zap.Bool("typing", typing),
			zap.String("conversation_id", c.conversationID),
			zap.Error(err))
	}
}
