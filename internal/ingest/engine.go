package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/model"
	"go.uber.org/zap"
)

// Engine persists gateway traffic into the local cache so history is
// available offline and across restarts. It subscribes to "gw." events on
// the bus and ingests every conversation, not just the one on screen.
type Engine struct {
	db     *cache.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates an ingest engine. logger may be nil.
func NewEngine(db *cache.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, bus: b, logger: logger}
}

// Start subscribes to gateway message events and local read marks on the
// bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	msgs, unsubMsgs := e.bus.Subscribe(bus.KindGatewayMessage, 256)
	reads, unsubReads := e.bus.Subscribe(bus.KindMessageRead, 256)

	go func() {
		defer unsubMsgs()
		defer unsubReads()
		for {
			select {
			case evt := <-msgs:
				msg, ok := evt.Payload.(*model.Message)
				if !ok {
					continue
				}
				if err := e.IngestMessage(msg); err != nil {
					e.logger.Error("failed to ingest message",
						zap.Error(err), zap.String("msg_id", msg.ID))
				}
			case evt := <-reads:
				mark, ok := evt.Payload.(bus.ReadMark)
				if !ok {
					continue
				}
				if err := e.db.MarkMessageRead(mark.ConversationID, mark.MessageID); err != nil {
					e.logger.Error("failed to mark cached message read",
						zap.Error(err), zap.String("msg_id", mark.MessageID))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// IngestMessage stores a single message and refreshes its conversation row
// (idempotent).
func (e *Engine) IngestMessage(msg *model.Message) error {
	var lastAt int64
	if !msg.CreatedAt.IsZero() {
		lastAt = msg.CreatedAt.UnixMilli()
	}
	if err := e.db.UpsertConversation(&cache.Conversation{
		ID:                 msg.ConversationID,
		LastMessageAt:      lastAt,
		LastMessagePreview: preview(msg),
	}); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if err := e.db.UpsertMessage(cache.FromModel(msg)); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:    bus.KindCacheMessage,
		At:      time.Now(),
		Payload: msg.ConversationID,
	})
	return nil
}

// IngestConversation persists a fetched conversation snapshot in one
// transaction: the counterparty row plus every message.
func (e *Engine) IngestConversation(conv *model.Conversation, currentUserID string) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	other := conv.Counterparty(currentUserID)
	var lastAt int64
	var lastPreview string
	for i := range conv.Messages {
		m := &conv.Messages[i]
		if !m.CreatedAt.IsZero() && m.CreatedAt.UnixMilli() >= lastAt {
			lastAt = m.CreatedAt.UnixMilli()
			lastPreview = preview(m)
		}
	}

	if err := cache.UpsertConversationTx(tx, &cache.Conversation{
		ID:                    conv.ID,
		CounterpartyID:        other.ID,
		CounterpartyName:      other.Name,
		CounterpartyAvatarURL: other.AvatarURL,
		LastMessageAt:         lastAt,
		LastMessagePreview:    lastPreview,
	}); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	for i := range conv.Messages {
		row := cache.FromModel(&conv.Messages[i])
		if row.ConversationID == "" {
			row.ConversationID = conv.ID
		}
		if err := cache.UpsertMessageTx(tx, row); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:    bus.KindCacheMessage,
		At:      time.Now(),
		Payload: conv.ID,
	})
	e.logger.Info("conversation snapshot ingested",
		zap.String("conversation_id", conv.ID),
		zap.Int("messages", len(conv.Messages)))
	return nil
}

const previewLen = 100

func preview(m *model.Message) string {
	if m.Body == "" && len(m.Attachments) > 0 {
		return "[" + m.Attachments[0].FileName + "]"
	}
	if len(m.Body) <= previewLen {
		return m.Body
	}
	return m.Body[:previewLen]
}
