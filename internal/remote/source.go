// Package remote defines the boundary to the remote chat source.
//
// The sync service consumes only these types; concrete transports
// (a live MTProto client, the bundled JSONL replay source) implement
// Source and never leak their own message representation past this
// package.
package remote

import (
	"context"
	"fmt"
	"time"
)

// Message is the wire-level message shape at the transport boundary.
// Remote payloads carry many loosely-typed optional fields; each one is
// modeled as an explicit pointer here and converted exactly once into
// the store's internal shape by the sync service.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       *int64
	Text           *string
	MediaDesc      *string
	Outgoing       bool
	Date           time.Time
	EditedAt       *time.Time
	Deleted        bool
	DeletedAt      *time.Time
	ReplyTo        *int64
	Attachments    []Attachment
}

// Attachment describes one binary attachment carried by a remote message.
type Attachment struct {
	Index      int
	Kind       string // photo, document, audio, video, voice, sticker, gif, file
	MimeType   string
	FileName   string
	Size       int64
	RemoteID   string
	ThumbCount int
}

// SentMessage describes a message accepted by the remote source.
type SentMessage struct {
	ID        int64
	Timestamp time.Time
}

// AttachmentLocator identifies one attachment for download.
type AttachmentLocator struct {
	ConversationID int64
	MessageID      int64
	Index          int
	RemoteID       string
}

// StreamOptions bound a message stream. Zero values mean "unbounded".
type StreamOptions struct {
	Limit           int
	BeforeTimestamp int64 // epoch seconds, exclusive upper bound
	MinID           int64 // stream only messages with id > MinID
}

// MessageStream is a pull-based message iterator. Next returns io.EOF
// when the stream is exhausted; the caller stops iterating to cancel.
type MessageStream interface {
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// Source is the abstract remote message source consumed by the sync
// service, the outbox sender and the media downloader.
type Source interface {
	StreamMessages(ctx context.Context, conversationID int64, opts StreamOptions) (MessageStream, error)
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	SendMessage(ctx context.Context, conversationID int64, text string) (*SentMessage, error)
	DownloadAttachment(ctx context.Context, loc AttachmentLocator) ([]byte, error)
}

// RateLimitError signals the remote source asked us to slow down
// (e.g. a FLOOD_WAIT). The sync service backs off and resumes the same
// stream; every other transport error aborts the pass.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by remote source, retry after %s", e.RetryAfter)
}
