package store

// Revision kinds, one per observed message state transition.
const (
	RevisionCreate = "create"
	RevisionEdit   = "edit"
	RevisionDelete = "delete"
)

// Sync segment origins.
const (
	OriginFull        = "full"
	OriginIncremental = "incremental"
	OriginQuery       = "query"
)

// Message represents a synced message. (ConversationID, MsgID) is the
// stable key; ID is the local rowid the FTS and embedding tables hang
// off. Messages are never hard-deleted, only flagged.
type Message struct {
	ID             int64
	ConversationID int64
	MsgID          int64
	SenderID       *int64
	Text           string
	MediaDesc      string
	Outgoing       bool
	Timestamp      int64 // epoch seconds
	TimestampISO   string
	EditedAt       *int64
	IsDeleted      bool
	DeletedAt      *int64
	ReplyTo        *int64

	// Attachments carried by the remote payload; forwarded to the
	// attachment index during upsert, not read back on queries.
	Attachments []Attachment
}

// Revision is one immutable audit-log entry for a message.
type Revision struct {
	ID             int64
	ConversationID int64
	MsgID          int64
	Kind           string
	Text           string
	MediaDesc      string
	Timestamp      int64
}

// Attachment tracks one binary attachment of a message.
type Attachment struct {
	ID             int64
	ConversationID int64
	MsgID          int64
	Index          int
	Kind           string
	MimeType       string
	FileName       string
	Size           int64
	RemoteID       string
	ThumbCount     int
	Downloaded     bool
	LocalPath      string
	ContentHash    string
}

// Segment is one recorded fully-synced time window. Segments are
// append-only; coverage is the union of all segments.
type Segment struct {
	ID             int64
	ConversationID int64
	StartTS        int64
	EndTS          int64
	Origin         string
	CreatedAt      int64
}

// Range is a [Start, End] inclusive epoch-second interval.
type Range struct {
	Start int64
	End   int64
}

// Sender filters QueryMessages by message direction.
type Sender int

const (
	SenderAny Sender = iota
	SenderSelf
	SenderOther
)

// QueryOptions filter a message query. Zero values mean "no filter".
type QueryOptions struct {
	Since       int64
	Until       int64
	Sender      Sender
	TextPattern string // SQL LIKE pattern over text/media_desc
	Limit       int
}

// SearchResult holds a message with its FTS rank and snippet.
type SearchResult struct {
	Message Message
	Rank    float64
	Snippet string
}

// EmbeddedMessage pairs a message with its stored vector.
type EmbeddedMessage struct {
	Message Message
	Vector  []float32
}

// Stats aggregates per-conversation (or global) storage counters.
type Stats struct {
	TotalMessages int
	Outgoing      int
	Incoming      int
	EmbeddedCount int
	FirstDate     string
	LastDate      string
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID             int64
	ClientID       string
	ConversationID int64
	Body           string
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	RemoteMsgID    int64
}

// FeedbackEntry is one suggestion-feedback log row.
type FeedbackEntry struct {
	ID             int64
	ConversationID int64
	Suggested      string
	Sent           string
	Edited         bool
	CreatedAt      int64
}
