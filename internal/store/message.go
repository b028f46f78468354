package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const messageColumns = `id, conversation_id, msg_id, sender_id, text, media_desc, out,
	ts, ts_iso, edited_ts, is_deleted, deleted_ts, reply_to`

func isoFromEpoch(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// UpsertMessage inserts or updates a message keyed on (conversation, msg id).
// A first sighting inserts the row and logs a "create" revision. A
// resync of an identical message is a no-op, so retried passes are
// idempotent. A changed message (text, media description, edit
// timestamp, reply target or deleted flag differ) is updated in place,
// any soft-delete is cleared, and an "edit" revision is logged.
// Attachments ride along in the same transaction.
func (db *DB) UpsertMessage(m *Message) (inserted, updated bool, err error) {
	if m.TimestampISO == "" {
		m.TimestampISO = isoFromEpoch(m.Timestamp)
	}
	now := time.Now().Unix()

	tx, err := db.Begin()
	if err != nil {
		return false, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		curText    string
		curMedia   string
		curEdited  *int64
		curReplyTo *int64
		curDeleted bool
	)
	err = tx.QueryRow(`
		SELECT text, media_desc, edited_ts, reply_to, is_deleted
		FROM messages WHERE conversation_id = ? AND msg_id = ?`,
		m.ConversationID, m.MsgID).
		Scan(&curText, &curMedia, &curEdited, &curReplyTo, &curDeleted)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_id, text, media_desc, out,
				ts, ts_iso, edited_ts, is_deleted, deleted_ts, reply_to, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?, ?)`,
			m.ConversationID, m.MsgID, m.SenderID, m.Text, m.MediaDesc, m.Outgoing,
			m.Timestamp, m.TimestampISO, m.EditedAt, m.ReplyTo, now, now)
		if err != nil {
			return false, false, fmt.Errorf("insert message: %w", err)
		}
		if err := logRevision(tx, m.ConversationID, m.MsgID, RevisionCreate, m.Text, m.MediaDesc, m.Timestamp); err != nil {
			return false, false, err
		}
		if err := upsertAttachmentsTx(tx, m.ConversationID, m.MsgID, m.Attachments); err != nil {
			return false, false, err
		}
		if err := tx.Commit(); err != nil {
			return false, false, fmt.Errorf("commit: %w", err)
		}
		return true, false, nil

	case err != nil:
		return false, false, fmt.Errorf("lookup message: %w", err)
	}

	changed := curText != m.Text ||
		curMedia != m.MediaDesc ||
		!int64PtrEqual(curEdited, m.EditedAt) ||
		!int64PtrEqual(curReplyTo, m.ReplyTo) ||
		curDeleted != m.IsDeleted

	if !changed {
		// Still merge attachment metadata; a retried pass may carry
		// richer attachment info than the first sighting.
		if len(m.Attachments) > 0 {
			if err := upsertAttachmentsTx(tx, m.ConversationID, m.MsgID, m.Attachments); err != nil {
				return false, false, err
			}
			if err := tx.Commit(); err != nil {
				return false, false, fmt.Errorf("commit: %w", err)
			}
		}
		return false, false, nil
	}

	_, err = tx.Exec(`
		UPDATE messages
		SET text = ?, media_desc = ?, edited_ts = ?, reply_to = ?,
			is_deleted = 0, deleted_ts = NULL, updated_at = ?
		WHERE conversation_id = ? AND msg_id = ?`,
		m.Text, m.MediaDesc, m.EditedAt, m.ReplyTo, now, m.ConversationID, m.MsgID)
	if err != nil {
		return false, false, fmt.Errorf("update message: %w", err)
	}

	revTS := m.Timestamp
	if m.EditedAt != nil {
		revTS = *m.EditedAt
	}
	if err := logRevision(tx, m.ConversationID, m.MsgID, RevisionEdit, m.Text, m.MediaDesc, revTS); err != nil {
		return false, false, err
	}
	if err := upsertAttachmentsTx(tx, m.ConversationID, m.MsgID, m.Attachments); err != nil {
		return false, false, err
	}
	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("commit: %w", err)
	}
	return false, true, nil
}

// MarkDeleted soft-deletes a message and logs a "delete" revision.
// Unknown messages are a no-op, not an error. The row stays queryable
// for audit; only the flag flips.
func (db *DB) MarkDeleted(conversationID, msgID, at int64) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var text, media string
	err = tx.QueryRow(`
		SELECT text, media_desc FROM messages
		WHERE conversation_id = ? AND msg_id = ?`,
		conversationID, msgID).Scan(&text, &media)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup message: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE messages
		SET is_deleted = 1, deleted_ts = ?, updated_at = ?
		WHERE conversation_id = ? AND msg_id = ?`,
		at, time.Now().Unix(), conversationID, msgID)
	if err != nil {
		return false, fmt.Errorf("mark deleted: %w", err)
	}
	if err := logRevision(tx, conversationID, msgID, RevisionDelete, text, media, at); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// GetMessage returns one message by key, or nil when unknown.
func (db *DB) GetMessage(conversationID, msgID int64) (*Message, error) {
	row := db.QueryRow(`
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND msg_id = ?`,
		conversationID, msgID)
	var m Message
	if err := scanMessage(row, &m); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &m, nil
}

// QueryMessages returns messages for a conversation matching all
// supplied filters, ascending by time. TextPattern is a LIKE pattern
// applied to text or media description; a malformed pattern degrades
// to "no pattern filter" since it is user-supplied.
func (db *DB) QueryMessages(conversationID int64, opts QueryOptions) ([]Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}

	if opts.Since > 0 {
		q += " AND ts >= ?"
		args = append(args, opts.Since)
	}
	if opts.Until > 0 {
		q += " AND ts <= ?"
		args = append(args, opts.Until)
	}
	switch opts.Sender {
	case SenderSelf:
		q += " AND out = 1"
	case SenderOther:
		q += " AND out = 0"
	}
	if pattern, ok := likePattern(opts.TextPattern); ok {
		q += ` AND (text LIKE ? ESCAPE '\' OR media_desc LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	q += " ORDER BY ts ASC, msg_id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessagesByDateRange is a convenience narrowing of QueryMessages.
func (db *DB) MessagesByDateRange(conversationID, since, until int64, limit int) ([]Message, error) {
	return db.QueryMessages(conversationID, QueryOptions{Since: since, Until: until, Limit: limit})
}

// FindConversationsContaining returns the ids of all conversations
// holding a message with the given remote id.
func (db *DB) FindConversationsContaining(msgID int64) ([]int64, error) {
	rows, err := db.Query(`
		SELECT DISTINCT conversation_id FROM messages
		WHERE msg_id = ? ORDER BY conversation_id`, msgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner, m *Message) error {
	return r.Scan(
		&m.ID, &m.ConversationID, &m.MsgID, &m.SenderID, &m.Text, &m.MediaDesc, &m.Outgoing,
		&m.Timestamp, &m.TimestampISO, &m.EditedAt, &m.IsDeleted, &m.DeletedAt, &m.ReplyTo,
	)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// likePattern validates and normalizes a user-supplied LIKE pattern.
// A pattern ending in an unescaped backslash would break the ESCAPE
// clause; such input drops the filter entirely. Patterns without any
// wildcard get substring semantics.
func likePattern(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	trailing := 0
	for i := len(p) - 1; i >= 0 && p[i] == '\\'; i-- {
		trailing++
	}
	if trailing%2 == 1 {
		return "", false
	}
	if !strings.ContainsAny(p, "%_") {
		p = "%" + p + "%"
	}
	return p, true
}
