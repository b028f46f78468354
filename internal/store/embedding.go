package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// encodeVector packs a float32 vector as little-endian bytes for BLOB
// storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

// InsertEmbedding stores the vector for a message by local rowid.
// Re-embedding an already indexed message is a no-op.
func (db *DB) InsertEmbedding(messageRef int64, vector []float32) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO embeddings (message_ref, dim, vector, created_at)
		VALUES (?, ?, ?, ?)`,
		messageRef, len(vector), encodeVector(vector), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// EmbeddedMessages returns all non-deleted embedded messages in a
// window, vectors decoded. ConversationID 0 spans all conversations.
func (db *DB) EmbeddedMessages(conversationID, since, until int64) ([]EmbeddedMessage, error) {
	q := `
		SELECT ` + prefixColumns("m.", messageColumns) + `, e.vector
		FROM embeddings e
		JOIN messages m ON m.id = e.message_ref
		WHERE m.is_deleted = 0`
	var args []any

	if conversationID != 0 {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	if since > 0 {
		q += " AND m.ts >= ?"
		args = append(args, since)
	}
	if until > 0 {
		q += " AND m.ts <= ?"
		args = append(args, until)
	}
	q += " ORDER BY m.ts ASC, m.msg_id ASC"

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []EmbeddedMessage
	for rows.Next() {
		var em EmbeddedMessage
		var blob []byte
		if err := rows.Scan(
			&em.Message.ID, &em.Message.ConversationID, &em.Message.MsgID, &em.Message.SenderID,
			&em.Message.Text, &em.Message.MediaDesc, &em.Message.Outgoing,
			&em.Message.Timestamp, &em.Message.TimestampISO, &em.Message.EditedAt,
			&em.Message.IsDeleted, &em.Message.DeletedAt, &em.Message.ReplyTo,
			&blob,
		); err != nil {
			return nil, err
		}
		em.Vector = decodeVector(blob)
		out = append(out, em)
	}
	return out, rows.Err()
}

// MessagesNeedingEmbedding returns non-deleted messages with text but
// no stored vector, oldest first. Feeds the background indexer.
func (db *DB) MessagesNeedingEmbedding(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 64
	}
	rows, err := db.Query(`
		SELECT `+prefixColumns("m.", messageColumns)+`
		FROM messages m
		LEFT JOIN embeddings e ON e.message_ref = m.id
		WHERE e.message_ref IS NULL AND m.is_deleted = 0 AND m.text != ''
		ORDER BY m.ts ASC, m.msg_id ASC
		LIMIT ?`, limit)
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
