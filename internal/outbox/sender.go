package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/model"
	"go.uber.org/zap"
)

// MessageSender delivers a queued message to the platform.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, body string, attachmentIDs []string) (*model.Message, error)
}

// Sender drains the outbox retry queue through the gateway. Each entry gets
// an optimistic "sending" row in the cache, so the conversation list
// preview, search and cached history all carry the queued text while it
// waits; on success the optimistic row is replaced by the server's copy.
type Sender struct {
	db            *cache.DB
	sender        MessageSender
	bus           *bus.Bus
	currentUserID string
	logger        *zap.Logger
	cancel        context.CancelFunc
}

const drainInterval = 500 * time.Millisecond

// NewSender creates an outbox sender. logger may be nil.
func NewSender(db *cache.DB, sender MessageSender, b *bus.Bus, currentUserID string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{db: db, sender: sender, bus: b, currentUserID: currentUserID, logger: logger}
}

// Queue adds a message to the retry queue and returns its client ID.
func (s *Sender) Queue(conversationID, body string) (string, error) {
	clientMsgID := uuid.New().String()
	if err := s.db.QueueOutbox(clientMsgID, conversationID, body); err != nil {
		return "", err
	}
	s.bus.Publish(bus.Event{Kind: bus.KindSendQueued, At: time.Now(), Payload: clientMsgID})
	return clientMsgID, nil
}

// Start begins polling the queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the drain loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending",
				zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		// Optimistic row so the thread shows the message right away.
		now := time.Now().UnixMilli()
		_ = s.db.UpsertMessage(&cache.Message{
			ConversationID: entry.ConversationID,
			MsgID:          entry.ClientMsgID,
			SenderID:       s.currentUserID,
			Body:           entry.Body,
			Status:         cache.StatusSending,
			CreatedAt:      now,
		})
		s.bus.Publish(bus.Event{Kind: bus.KindCacheMessage, At: time.Now(), Payload: entry.ConversationID})

		msg, err := s.sender.SendMessage(ctx, entry.ConversationID, entry.Body, nil)
		if err != nil {
			s.logger.Error("failed to send queued message",
				zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			_ = s.db.UpsertMessage(&cache.Message{
				ConversationID: entry.ConversationID,
				MsgID:          entry.ClientMsgID,
				SenderID:       s.currentUserID,
				Body:           entry.Body,
				Status:         cache.StatusFailed,
				CreatedAt:      now,
			})
			s.bus.Publish(bus.Event{Kind: bus.KindSendFailed, At: time.Now(), Payload: bus.SendResult{
				ClientMsgID:    entry.ClientMsgID,
				ConversationID: entry.ConversationID,
				Err:            err.Error(),
			}})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.ID); err != nil {
			s.logger.Error("failed to mark sent",
				zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}

		// Swap the optimistic row for the server's copy so the realtime
		// echo (keyed by server ID) cannot duplicate it.
		_ = s.db.DeleteMessage(entry.ConversationID, entry.ClientMsgID)
		row := cache.FromModel(msg)
		row.Status = cache.StatusSent
		_ = s.db.UpsertMessage(row)

		s.logger.Info("queued message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", msg.ID))
		s.bus.Publish(bus.Event{Kind: bus.KindSendAck, At: time.Now(), Payload: bus.SendResult{
			ClientMsgID:    entry.ClientMsgID,
			ServerMsgID:    msg.ID,
			ConversationID: entry.ConversationID,
		}})
		s.bus.Publish(bus.Event{Kind: bus.KindCacheMessage, At: time.Now(), Payload: entry.ConversationID})
	}
}
