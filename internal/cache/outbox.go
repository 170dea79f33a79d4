package cache

import "time"

// QueueOutbox adds a message to the retry queue.
func (db *DB) QueueOutbox(clientMsgID, conversationID, body string) error {
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, conversation_id, body, status, created_at)
		VALUES (?, ?, ?, 'queued', ?)`,
		clientMsgID, conversationID, body, time.Now().UnixMilli())
	return err
}

// PendingOutbox returns queued entries in enqueue order.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, conversation_id, body, status, error_message, server_msg_id
		FROM outbox WHERE status = 'queued' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.RowID, &e.ClientMsgID, &e.ConversationID, &e.Body,
			&e.Status, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OutboxEntry is a queued outgoing message.
type OutboxEntry struct {
	RowID          int64
	ClientMsgID    string
	ConversationID string
	Body           string
	Status         string
	ErrorMessage   string
	ServerMsgID    string
}

// MarkOutboxSending transitions an entry to sending.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	_, err := db.Exec(`UPDATE outbox SET status = 'sending' WHERE client_msg_id = ?`, clientMsgID)
	return err
}

// MarkOutboxSent records the server's message ID and finishes the entry.
func (db *DB) MarkOutboxSent(clientMsgID, serverMsgID string) error {
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ? WHERE client_msg_id = ?`,
		serverMsgID, clientMsgID)
	return err
}

// MarkOutboxFailed parks the entry with its error. RequeueOutbox puts it
// back in line.
func (db *DB) MarkOutboxFailed(clientMsgID, errorMessage string) error {
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ? WHERE client_msg_id = ?`,
		errorMessage, clientMsgID)
	return err
}

// RequeueOutbox returns a failed entry to the queue.
func (db *DB) RequeueOutbox(clientMsgID string) error {
	_, err := db.Exec(`UPDATE outbox SET status = 'queued', error_message = '' WHERE client_msg_id = ? AND status = 'failed'`,
		clientMsgID)
	return err
}
