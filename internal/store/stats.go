package store

import (
	"database/sql"
)

// GetStats aggregates counters for one conversation, or for the whole
// vault with conversationID 0. Deleted messages still count toward the
// totals; they are history, not absence.
func (db *DB) GetStats(conversationID int64) (*Stats, error) {
	where := ""
	var args []any
	if conversationID != 0 {
		where = " WHERE conversation_id = ?"
		args = append(args, conversationID)
	}

	var s Stats
	var first, last sql.NullInt64
	err := db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(out), 0),
			MIN(ts), MAX(ts)
		FROM messages`+where, args...).
		Scan(&s.TotalMessages, &s.Outgoing, &first, &last)
	if err != nil {
		return nil, err
	}
	s.Incoming = s.TotalMessages - s.Outgoing
	if first.Valid {
		s.FirstDate = isoFromEpoch(first.Int64)
	}
	if last.Valid {
		s.LastDate = isoFromEpoch(last.Int64)
	}

	embQ := `
		SELECT COUNT(*) FROM embeddings e
		JOIN messages m ON m.id = e.message_ref`
	if conversationID != 0 {
		embQ += " WHERE m.conversation_id = ?"
	}
	if err := db.QueryRow(embQ, args...).Scan(&s.EmbeddedCount); err != nil {
		return nil, err
	}
	return &s, nil
}
