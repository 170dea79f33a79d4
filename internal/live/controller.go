package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/model"
	"github.com/tradewell/twchat/internal/presence"
	"github.com/tradewell/twchat/internal/timeline"
	"go.uber.org/zap"
)

// State is the controller's subscription lifecycle state.
type State int

const (
	Idle State = iota
	Subscribed
	Closed
)

// ReadReceipter sends server-side read receipts.
type ReadReceipter interface {
	MarkMessageRead(ctx context.Context, messageID string) error
}

// Controller is the only writer to a conversation's timeline store besides
// the initial load. While subscribed it applies gateway push events to the
// store and typing tracker, and emits one read receipt per incoming message
// ID. After Close no event is applied, even if some were in flight.
type Controller struct {
	conversationID string
	currentUserID  string

	store    *timeline.Store
	tracker  *presence.Tracker
	bus      *bus.Bus
	receipts ReadReceipter
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	acked  map[string]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates an idle controller for one conversation. logger may
// be nil.
func NewController(conversationID, currentUserID string, store *timeline.Store,
	tracker *presence.Tracker, b *bus.Bus, receipts ReadReceipter, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		conversationID: conversationID,
		currentUserID:  currentUserID,
		store:          store,
		tracker:        tracker,
		bus:            b,
		receipts:       receipts,
		logger:         logger,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start subscribes to the gateway event feed. Valid only from Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return errors.New("controller already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	ch, unsub := c.bus.Subscribe("gw.", 256)
	c.acked = make(map[string]struct{})
	c.done = make(chan struct{})
	c.state = Subscribed

	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				// Guard against events drained after cancellation.
				if ctx.Err() != nil {
					return
				}
				c.handle(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close unsubscribes and blocks until the event loop has stopped, so no
// mutation can race the caller's teardown. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state != Subscribed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *Controller) handle(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindGatewayMessage:
		msg, ok := evt.Payload.(*model.Message)
		if !ok || msg.ConversationID != c.conversationID {
			return
		}
		c.applyMessage(ctx, msg)
	case bus.KindGatewayTyping:
		te, ok := evt.Payload.(model.TypingEvent)
		if !ok || te.ConversationID != c.conversationID || te.UserID == c.currentUserID {
			return
		}
		c.tracker.SetTyping(te)
		c.bus.Publish(bus.Event{Kind: bus.KindTypingChanged, At: time.Now(), Payload: c.conversationID})
	case bus.KindGatewayPresence:
		p, ok := evt.Payload.(model.Presence)
		if !ok {
			return
		}
		c.tracker.SetPresence(p)
		c.bus.Publish(bus.Event{Kind: bus.KindPresenceChanged, At: time.Now(), Payload: p.UserID})
	}
}

func (c *Controller) applyMessage(ctx context.Context, msg *model.Message) {
	if err := c.store.Upsert(*msg); err != nil {
		c.logger.Warn("dropping message event", zap.Error(err))
		return
	}

	if msg.Sender.ID != c.currentUserID {
		// The sender was typing; their message supersedes the flag.
		c.tracker.ClearTyping(c.conversationID, msg.Sender.ID)
		c.bus.Publish(bus.Event{Kind: bus.KindTypingChanged, At: time.Now(), Payload: c.conversationID})

		if !msg.Read {
			c.store.MarkRead(msg.ID)
			c.bus.Publish(bus.Event{Kind: bus.KindMessageRead, At: time.Now(), Payload: bus.ReadMark{
				ConversationID: c.conversationID,
				MessageID:      msg.ID,
			}})
			c.sendReceipt(ctx, msg.ID)
		}
	}

	c.bus.Publish(bus.Event{Kind: bus.KindTimelineUpdated, At: time.Now(), Payload: c.conversationID})
}

// sendReceipt emits at most one read receipt per message ID for the
// lifetime of this subscription. Fire-and-forget: local read state does not
// wait on the server, failures are only logged.
func (c *Controller) sendReceipt(ctx context.Context, messageID string) {
	c.mu.Lock()
	if _, done := c.acked[messageID]; done {
		c.mu.Unlock()
		return
	}
	c.acked[messageID] = struct{}{}
	c.mu.Unlock()

	go func() {
		if err := c.receipts.MarkMessageRead(ctx, messageID); err != nil {
			c.logger.Warn("read receipt failed",
				zap.String("message_id", messageID), zap.Error(err))
		}
	}()
}
