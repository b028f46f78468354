package store

import (
	"fmt"
	"time"
)

// RecordFeedback logs one suggestion outcome: what was proposed, what
// was actually sent, and whether the user edited it first.
func (db *DB) RecordFeedback(conversationID int64, suggested, sent string, edited bool) error {
	_, err := db.Exec(`
		INSERT INTO suggestion_feedback (conversation_id, suggested, sent, edited, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, suggested, sent, edited, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// RecentFeedback returns the latest feedback entries, newest first.
// ConversationID 0 spans all conversations.
func (db *DB) RecentFeedback(conversationID int64, limit int) ([]FeedbackEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, conversation_id, suggested, sent, edited, created_at
		FROM suggestion_feedback`
	var args []any
	if conversationID != 0 {
		q += " WHERE conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []FeedbackEntry
	for rows.Next() {
		var e FeedbackEntry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Suggested, &e.Sent, &e.Edited, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
