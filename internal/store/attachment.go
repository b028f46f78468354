package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// upsertAttachmentsTx merges attachment metadata by composite key.
// Download state (downloaded, local_path, content_hash) is never
// touched here; only MarkAttachmentDownloaded flips it.
func upsertAttachmentsTx(tx *sql.Tx, conversationID, msgID int64, atts []Attachment) error {
	for _, a := range atts {
		_, err := tx.Exec(`
			INSERT INTO attachments (conversation_id, msg_id, att_index, kind, mime_type,
				file_name, size, remote_id, thumb_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id, att_index) DO UPDATE SET
				kind = excluded.kind,
				mime_type = excluded.mime_type,
				file_name = excluded.file_name,
				size = excluded.size,
				remote_id = excluded.remote_id,
				thumb_count = excluded.thumb_count`,
			conversationID, msgID, a.Index, a.Kind, a.MimeType,
			a.FileName, a.Size, a.RemoteID, a.ThumbCount)
		if err != nil {
			return fmt.Errorf("upsert attachment %d: %w", a.Index, err)
		}
	}
	return nil
}

// UpsertAttachments merges attachment metadata outside a message upsert.
func (db *DB) UpsertAttachments(conversationID, msgID int64, atts []Attachment) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := upsertAttachmentsTx(tx, conversationID, msgID, atts); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkAttachmentDownloaded records a completed download: content hash,
// local path, downloaded flag. Call only after the bytes are durably
// written, so a marked attachment is never missing on disk. Returns
// false when the attachment row is unknown.
func (db *DB) MarkAttachmentDownloaded(conversationID, msgID int64, index int, localPath string, content []byte) (bool, error) {
	sum := sha256.Sum256(content)
	res, err := db.Exec(`
		UPDATE attachments
		SET downloaded = 1, local_path = ?, content_hash = ?
		WHERE conversation_id = ? AND msg_id = ? AND att_index = ?`,
		localPath, hex.EncodeToString(sum[:]), conversationID, msgID, index)
	if err != nil {
		return false, fmt.Errorf("mark downloaded: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// VerifyAttachment recomputes the content hash and compares it with
// the stored one, detecting corruption of the local copy.
func (db *DB) VerifyAttachment(conversationID, msgID int64, index int, content []byte) (bool, error) {
	var stored string
	err := db.QueryRow(`
		SELECT content_hash FROM attachments
		WHERE conversation_id = ? AND msg_id = ? AND att_index = ? AND downloaded = 1`,
		conversationID, msgID, index).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(content)
	return stored == hex.EncodeToString(sum[:]), nil
}

// ListAttachmentOptions filter ListAttachments. Zero values mean "no filter".
type ListAttachmentOptions struct {
	MsgID int64
	Since int64
	Until int64
	Limit int
}

// ListAttachments returns attachments for a conversation, by message id
// or by the parent message's time range, for audit and browsing.
func (db *DB) ListAttachments(conversationID int64, opts ListAttachmentOptions) ([]Attachment, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `
		SELECT a.id, a.conversation_id, a.msg_id, a.att_index, a.kind, a.mime_type,
			a.file_name, a.size, a.remote_id, a.thumb_count, a.downloaded, a.local_path, a.content_hash
		FROM attachments a
		JOIN messages m ON m.conversation_id = a.conversation_id AND m.msg_id = a.msg_id
		WHERE a.conversation_id = ?`
	args := []any{conversationID}

	if opts.MsgID > 0 {
		q += " AND a.msg_id = ?"
		args = append(args, opts.MsgID)
	}
	if opts.Since > 0 {
		q += " AND m.ts >= ?"
		args = append(args, opts.Since)
	}
	if opts.Until > 0 {
		q += " AND m.ts <= ?"
		args = append(args, opts.Until)
	}
	q += " ORDER BY m.ts ASC, a.msg_id ASC, a.att_index ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanAttachments(rows)
}

// PendingAttachments returns attachments not yet downloaded, oldest
// parent message first, feeding the media download loop.
func (db *DB) PendingAttachments(limit int) ([]Attachment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT a.id, a.conversation_id, a.msg_id, a.att_index, a.kind, a.mime_type,
			a.file_name, a.size, a.remote_id, a.thumb_count, a.downloaded, a.local_path, a.content_hash
		FROM attachments a
		JOIN messages m ON m.conversation_id = a.conversation_id AND m.msg_id = a.msg_id
		WHERE a.downloaded = 0 AND m.is_deleted = 0
		ORDER BY m.ts ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanAttachments(rows)
}

func scanAttachments(rows *sql.Rows) ([]Attachment, error) {
	var atts []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.ConversationID, &a.MsgID, &a.Index, &a.Kind, &a.MimeType,
			&a.FileName, &a.Size, &a.RemoteID, &a.ThumbCount, &a.Downloaded, &a.LocalPath, &a.ContentHash); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
