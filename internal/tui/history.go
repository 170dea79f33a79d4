package tui

import (
	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/model"
)

// historyLimit caps how much cached history one thread loads.
const historyLimit = 200

// conversationFromCache rebuilds a conversation from cached rows so the
// thread can open without the gateway. rows come newest-first from
// ListMessages; the result is oldest-first, ready for Store.Load.
func conversationFromCache(self model.User, row *cache.Conversation, rows []cache.Message) *model.Conversation {
	conv := &model.Conversation{
		ID: row.ID,
		Participants: [2]model.User{
			self,
			{
				ID:        row.CounterpartyID,
				Name:      row.CounterpartyName,
				AvatarURL: row.CounterpartyAvatarURL,
			},
		},
	}
	for i := len(rows) - 1; i >= 0; i-- {
		conv.Messages = append(conv.Messages, rows[i].ToModel())
	}
	return conv
}
