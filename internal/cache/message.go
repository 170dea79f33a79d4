package cache

// UpsertMessage inserts or updates a message row, idempotent on
// (conversation_id, msg_id). The read flag never goes back to unread from
// a duplicate delivery.
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(`
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

// DeleteMessage removes a cached message row. Used to swap an optimistic
// outbox row for the server's confirmed copy.
func (db *DB) DeleteMessage(conversationID, msgID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ? AND msg_id = ?`,
		conversationID, msgID)
	return err
}

// MarkMessageRead sets the read flag on a cached message.
func (db *DB) MarkMessageRead(conversationID, msgID string) error {
	_, err := db.Exec(`UPDATE messages SET read = 1 WHERE conversation_id = ? AND msg_id = ?`,
		conversationID, msgID)
	return err
}

// ListMessages returns messages for a conversation using keyset pagination
// by created_at, newest first.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = int64(1)<<62 - 1
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, msg_id, sender_id, sender_name, body, attachments, status, read, created_at
		FROM messages
		WHERE conversation_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var m Message
		var atts string
		if err := rows.Scan(&m.RowID, &m.ConversationID, &m.MsgID, &m.SenderID, &m.SenderName,
			&m.Body, &atts, &m.Status, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Attachments = decodeAttachments(atts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchMessages runs a full-text query over cached message bodies.
// conversationID narrows the search when non-empty.
func (db *DB) SearchMessages(query, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT m.id, m.conversation_id, m.msg_id, m.sender_id, m.sender_name, m.body, m.attachments, m.status, m.read, m.created_at,
		       snippet(messages_fts, 0, '[', ']', '…', 12)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?
		  AND (? = '' OR m.conversation_id = ?)
		ORDER BY m.created_at DESC
		LIMIT ?`, query, conversationID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var atts string
		if err := rows.Scan(&r.Message.RowID, &r.Message.ConversationID, &r.Message.MsgID,
			&r.Message.SenderID, &r.Message.SenderName, &r.Message.Body, &atts,
			&r.Message.Status, &r.Message.Read, &r.Message.CreatedAt, &r.Snippet); err != nil {
			return nil, err
		}
		r.Message.Attachments = decodeAttachments(atts)
		out = append(out, r)
	}
	return out, rows.Err()
}
