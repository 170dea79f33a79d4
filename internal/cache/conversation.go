package cache

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertConversation inserts or refreshes a conversation row. The last
// message columns only move forward in time.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, counterparty_id, counterparty_name, counterparty_avatar_url, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			counterparty_id = CASE WHEN excluded.counterparty_id != '' THEN excluded.counterparty_id ELSE conversations.counterparty_id END,
			counterparty_name = CASE WHEN excluded.counterparty_name != '' THEN excluded.counterparty_name ELSE conversations.counterparty_name END,
			counterparty_avatar_url = CASE WHEN excluded.counterparty_avatar_url != '' THEN excluded.counterparty_avatar_url ELSE conversations.counterparty_avatar_url END,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at > conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.ID, c.CounterpartyID, c.CounterpartyName, c.CounterpartyAvatarURL,
		c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// GetConversation returns one conversation, or nil if unknown.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.QueryRow(`
		SELECT id, counterparty_id, counterparty_name, counterparty_avatar_url, last_message_at, last_message_preview
		FROM conversations WHERE id = ?`, id)
	var c Conversation
	err := row.Scan(&c.ID, &c.CounterpartyID, &c.CounterpartyName, &c.CounterpartyAvatarURL,
		&c.LastMessageAt, &c.LastMessagePreview)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListConversations returns conversations ordered by recency.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, counterparty_id, counterparty_name, counterparty_avatar_url, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.CounterpartyID, &c.CounterpartyName, &c.CounterpartyAvatarURL,
			&c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
