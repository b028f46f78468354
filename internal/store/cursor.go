package store

import (
	"database/sql"
	"fmt"
	"time"
)

// LastMessageID returns the incremental-sync cursor for a conversation,
// 0 when none has been recorded yet.
func (db *DB) LastMessageID(conversationID int64) (int64, error) {
	var id int64
	err := db.QueryRow(`
		SELECT last_msg_id FROM sync_state WHERE conversation_id = ?`,
		conversationID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AdvanceCursor moves the incremental-sync cursor forward. The cursor
// is monotonic: a stale value from an interleaved or retried pass can
// never move it backwards.
func (db *DB) AdvanceCursor(conversationID, msgID int64) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (conversation_id, last_msg_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_msg_id = MAX(last_msg_id, excluded.last_msg_id),
			updated_at = excluded.updated_at`,
		conversationID, msgID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}
