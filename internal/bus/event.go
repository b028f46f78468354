package bus

import "time"

// Event kinds published by the engine. Subscribers filter by namespace
// prefix, e.g. "sync." receives every sync event.
const (
	KindRemoteMessage   = "remote.message"
	KindMessageUpserted = "message.upserted"
	KindMessageDeleted  = "message.deleted"
	KindSyncPassDone    = "sync.pass_completed"
	KindSyncSegment     = "sync.segment_recorded"
	KindOutboxSent      = "outbox.sent"
	KindOutboxFailed    = "outbox.failed"
	KindMediaDownloaded = "media.downloaded"
	KindEmbedIndexed    = "embed.indexed"
	KindStatusChanged   = "vault.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
