package store

import (
	"database/sql"
	"fmt"
)

// logRevision appends one audit-log entry inside the caller's
// transaction. INSERT OR IGNORE: the unique key on (conversation, msg,
// kind, ts) swallows duplicates from retried syncs.
func logRevision(tx *sql.Tx, conversationID, msgID int64, kind, text, media string, ts int64) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO message_revisions (conversation_id, msg_id, kind, text, media_desc, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, msgID, kind, text, media, ts)
	if err != nil {
		return fmt.Errorf("log %s revision: %w", kind, err)
	}
	return nil
}

// ListRevisions returns the audit log for one message, oldest first.
func (db *DB) ListRevisions(conversationID, msgID int64) ([]Revision, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, msg_id, kind, text, media_desc, ts
		FROM message_revisions
		WHERE conversation_id = ? AND msg_id = ?
		ORDER BY ts ASC, id ASC`,
		conversationID, msgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var revs []Revision
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.MsgID, &r.Kind, &r.Text, &r.MediaDesc, &r.Timestamp); err != nil {
			return nil, err
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}
