package cache

import (
	"database/sql"
	"time"
)

// UpsertConversationTx is UpsertConversation inside an existing
// transaction, used by batch ingestion.
func UpsertConversationTx(tx *sql.Tx, c *Conversation) error {
	_, err := tx.Exec(`
		INSERT INTO conversations (id, counterparty_id, counterparty_name, counterparty_avatar_url, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			counterparty_id = CASE WHEN excluded.counterparty_id != '' THEN excluded.counterparty_id ELSE conversations.counterparty_id END,
			counterparty_name = CASE WHEN excluded.counterparty_name != '' THEN excluded.counterparty_name ELSE conversations.counterparty_name END,
			counterparty_avatar_url = CASE WHEN excluded.counterparty_avatar_url != '' THEN excluded.counterparty_avatar_url ELSE conversations.counterparty_avatar_url END,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.ID, c.CounterpartyID, c.CounterpartyName, c.CounterpartyAvatarURL,
		c.LastMessageAt, c.LastMessagePreview, time.Now().UnixMilli())
	return err
}

// UpsertMessageTx is UpsertMessage inside an existing transaction.
func UpsertMessageTx(tx *sql.Tx, m *Message) error {
	_, err := tx.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, body, attachments, status, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			attachments = excluded.attachments,
			status = excluded.status,
			read = MAX(messages.read, excluded.read),
			created_at = CASE WHEN excluded.created_at > 0 THEN excluded.created_at ELSE messages.created_at END`,
		m.ConversationID, m.MsgID, m.SenderID, m.SenderName, m.Body,
		encodeAttachments(m.Attachments), m.Status, m.Read, m.CreatedAt)
	return err
}
