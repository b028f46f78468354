package store

import (
	"strings"
)

// SearchOptions narrow a full-text search. ConversationID 0 searches
// all conversations.
type SearchOptions struct {
	ConversationID int64
	Since          int64
	Until          int64
	Limit          int
}

// SearchMessages runs an FTS5 keyword search over message text and
// media descriptions. Deleted messages are excluded. Results come back
// best match first with a highlighted snippet.
func (db *DB) SearchMessages(query string, opts SearchOptions) ([]SearchResult, error) {
	q := sanitizeFTS(query)
	if q == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	sqlQ := `
		SELECT ` + prefixColumns("m.", messageColumns) + `,
			f.rank, snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ? AND m.is_deleted = 0`
	args := []any{q}

	if opts.ConversationID != 0 {
		sqlQ += " AND m.conversation_id = ?"
		args = append(args, opts.ConversationID)
	}
	if opts.Since > 0 {
		sqlQ += " AND m.ts >= ?"
		args = append(args, opts.Since)
	}
	if opts.Until > 0 {
		sqlQ += " AND m.ts <= ?"
		args = append(args, opts.Until)
	}
	sqlQ += " ORDER BY f.rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(sqlQ, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.ConversationID, &r.Message.MsgID, &r.Message.SenderID,
			&r.Message.Text, &r.Message.MediaDesc, &r.Message.Outgoing,
			&r.Message.Timestamp, &r.Message.TimestampISO, &r.Message.EditedAt,
			&r.Message.IsDeleted, &r.Message.DeletedAt, &r.Message.ReplyTo,
			&r.Rank, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// sanitizeFTS quotes each whitespace-separated term so user input is
// matched literally instead of being parsed as FTS5 query syntax.
func sanitizeFTS(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

// prefixColumns prepends a table alias to each column in a comma list.
func prefixColumns(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
