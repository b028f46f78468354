package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// QueueOutbox enqueues an outgoing message. The client id deduplicates
// retried enqueues from the caller side.
func (db *DB) QueueOutbox(clientID string, conversationID int64, body string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO outbox (client_id, conversation_id, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		clientID, conversationID, body, OutboxQueued, time.Now().Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("queue outbox: %w", err)
	}
	return nil
}

// PendingOutbox returns queued entries oldest first.
func (db *DB) PendingOutbox(limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`
		SELECT id, client_id, conversation_id, body, status,
			COALESCE(error_message, ''), COALESCE(remote_msg_id, 0)
		FROM outbox
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, OutboxQueued, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.ConversationID, &e.Body, &e.Status, &e.ErrorMessage, &e.RemoteMsgID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkOutboxSending claims an entry for delivery. Returns false when
// the entry was already claimed or finished, so concurrent senders
// never double-send.
func (db *DB) MarkOutboxSending(clientID string) (bool, error) {
	res, err := db.Exec(`
		UPDATE outbox SET status = ?, updated_at = ?
		WHERE client_id = ? AND status = ?`,
		OutboxSending, time.Now().Unix(), clientID, OutboxQueued)
	if err != nil {
		return false, fmt.Errorf("mark sending: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkOutboxSent records successful delivery with the remote id
// assigned by the server.
func (db *DB) MarkOutboxSent(clientID string, remoteMsgID int64) error {
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, remote_msg_id = ?, error_message = '', updated_at = ?
		WHERE client_id = ?`,
		OutboxSent, remoteMsgID, time.Now().Unix(), clientID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkOutboxFailed records a delivery failure with its reason.
func (db *DB) MarkOutboxFailed(clientID, reason string) error {
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, error_message = ?, updated_at = ?
		WHERE client_id = ?`,
		OutboxFailed, reason, time.Now().Unix(), clientID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// OutboxEntryByClientID returns one entry, or nil when unknown.
func (db *DB) OutboxEntryByClientID(clientID string) (*OutboxEntry, error) {
	var e OutboxEntry
	err := db.QueryRow(`
		SELECT id, client_id, conversation_id, body, status,
			COALESCE(error_message, ''), COALESCE(remote_msg_id, 0)
		FROM outbox WHERE client_id = ?`, clientID).
		Scan(&e.ID, &e.ClientID, &e.ConversationID, &e.Body, &e.Status, &e.ErrorMessage, &e.RemoteMsgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
