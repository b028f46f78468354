package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ReplaySource serves messages from JSONL conversation dumps, one file
// per conversation named "<conversation_id>.jsonl". It makes the daemon
// usable for importing exported histories without a live transport, and
// backs the end-to-end tests.
type ReplaySource struct {
	dir    string
	logger *zap.Logger
}

// NewReplaySource creates a replay source reading dumps from dir.
func NewReplaySource(dir string, logger *zap.Logger) *ReplaySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplaySource{dir: dir, logger: logger}
}

// dumpRecord is the JSONL line shape of an exported message.
type dumpRecord struct {
	ID          int64            `json:"id"`
	SenderID    *int64           `json:"sender_id,omitempty"`
	Text        *string          `json:"text,omitempty"`
	MediaDesc   *string          `json:"media,omitempty"`
	Outgoing    bool             `json:"outgoing"`
	Date        int64            `json:"date"`
	EditedAt    *int64           `json:"edited_at,omitempty"`
	Deleted     bool             `json:"deleted,omitempty"`
	DeletedAt   *int64           `json:"deleted_at,omitempty"`
	ReplyTo     *int64           `json:"reply_to,omitempty"`
	Attachments []dumpAttachment `json:"attachments,omitempty"`
}

type dumpAttachment struct {
	Index      int    `json:"index"`
	Kind       string `json:"kind"`
	MimeType   string `json:"mime,omitempty"`
	FileName   string `json:"name,omitempty"`
	Size       int64  `json:"size,omitempty"`
	RemoteID   string `json:"remote_id"`
	ThumbCount int    `json:"thumbs,omitempty"`
}

func (r *ReplaySource) dumpPath(conversationID int64) string {
	return filepath.Join(r.dir, strconv.FormatInt(conversationID, 10)+".jsonl")
}

// StreamMessages streams the dump file for the conversation, applying
// the id and timestamp bounds from opts.
func (r *ReplaySource) StreamMessages(_ context.Context, conversationID int64, opts StreamOptions) (MessageStream, error) {
	f, err := os.Open(r.dumpPath(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			// Unknown conversation streams as empty, matching a live
			// source that has no history for the peer.
			return &replayStream{conversationID: conversationID, opts: opts}, nil
		}
		return nil, fmt.Errorf("open dump: %w", err)
	}
	return &replayStream{
		conversationID: conversationID,
		opts:           opts,
		file:           f,
		scanner:        bufio.NewScanner(f),
	}, nil
}

// CountMessages returns the number of records in the dump file.
func (r *ReplaySource) CountMessages(_ context.Context, conversationID int64) (int, error) {
	f, err := os.Open(r.dumpPath(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open dump: %w", err)
	}
	defer func() { _ = f.Close() }()

	count := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			count++
		}
	}
	return count, sc.Err()
}

// SendMessage is unsupported: dumps are read-only history.
func (r *ReplaySource) SendMessage(_ context.Context, conversationID int64, _ string) (*SentMessage, error) {
	return nil, fmt.Errorf("replay source is read-only, cannot send to conversation %d", conversationID)
}

// DownloadAttachment reads attachment bytes from the dump's media
// directory, keyed by remote file id.
func (r *ReplaySource) DownloadAttachment(_ context.Context, loc AttachmentLocator) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, "media", loc.RemoteID))
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", loc.RemoteID, err)
	}
	return data, nil
}

type replayStream struct {
	conversationID int64
	opts           StreamOptions
	file           *os.File
	scanner        *bufio.Scanner
	yielded        int
}

func (s *replayStream) Next(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.scanner == nil {
		return nil, io.EOF
	}
	if s.opts.Limit > 0 && s.yielded >= s.opts.Limit {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec dumpRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode dump line: %w", err)
		}
		if s.opts.MinID > 0 && rec.ID <= s.opts.MinID {
			continue
		}
		if s.opts.BeforeTimestamp > 0 && rec.Date >= s.opts.BeforeTimestamp {
			continue
		}
		s.yielded++
		return rec.toMessage(s.conversationID), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *replayStream) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (rec *dumpRecord) toMessage(conversationID int64) *Message {
	m := &Message{
		ID:             rec.ID,
		ConversationID: conversationID,
		SenderID:       rec.SenderID,
		Text:           rec.Text,
		MediaDesc:      rec.MediaDesc,
		Outgoing:       rec.Outgoing,
		Date:           time.Unix(rec.Date, 0).UTC(),
		Deleted:        rec.Deleted,
		ReplyTo:        rec.ReplyTo,
	}
	if rec.EditedAt != nil {
		at := time.Unix(*rec.EditedAt, 0).UTC()
		m.EditedAt = &at
	}
	if rec.DeletedAt != nil {
		at := time.Unix(*rec.DeletedAt, 0).UTC()
		m.DeletedAt = &at
	}
	for _, a := range rec.Attachments {
		m.Attachments = append(m.Attachments, Attachment{
			Index:      a.Index,
			Kind:       a.Kind,
			MimeType:   a.MimeType,
			FileName:   a.FileName,
			Size:       a.Size,
			RemoteID:   a.RemoteID,
			ThumbCount: a.ThumbCount,
		})
	}
	return m
}
