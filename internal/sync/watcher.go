package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/store"
)

// watcherBuffer bounds the subscription channel; bursts beyond it are
// dropped by the bus and picked up by the next sync pass instead.
const watcherBuffer = 256

// seenRingSize bounds the duplicate-suppression window.
const seenRingSize = 512

// Watcher stores live messages as they arrive on the bus, so the vault
// stays current between sync passes. Deduplication is best-effort; the
// store upsert is idempotent anyway.
type Watcher struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	seen    map[messageKey]struct{}
	ring    [seenRingSize]messageKey
	ringPos int
}

type messageKey struct {
	conversationID int64
	msgID          int64
}

// NewWatcher creates a live message watcher.
func NewWatcher(db *store.DB, b *bus.Bus, logger *zap.Logger) *Watcher {
	return &Watcher{
		db:     db,
		bus:    b,
		logger: logger,
		seen:   make(map[messageKey]struct{}, seenRingSize),
	}
}

// Start begins consuming live messages.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	events, unsub := w.bus.Subscribe(bus.KindRemoteMessage, watcherBuffer)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-events:
				w.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the watcher loop.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) handle(evt bus.Event) {
	rm, ok := evt.Payload.(*remote.Message)
	if !ok {
		w.logger.Warn("unexpected payload on remote.message", zap.String("kind", evt.Kind))
		return
	}

	key := messageKey{rm.ConversationID, rm.ID}
	if _, dup := w.seen[key]; dup && !rm.Deleted && rm.EditedAt == nil {
		return
	}
	w.remember(key)

	if rm.Deleted {
		deletedTS := rm.Date.Unix()
		if rm.DeletedAt != nil {
			deletedTS = rm.DeletedAt.Unix()
		}
		if _, err := w.db.MarkDeleted(rm.ConversationID, rm.ID, deletedTS); err != nil {
			w.logger.Error("failed to mark live deletion", zap.Error(err), zap.Int64("msg_id", rm.ID))
		}
		return
	}

	inserted, updated, err := w.db.UpsertMessage(convertMessage(rm.ConversationID, rm))
	if err != nil {
		w.logger.Error("failed to store live message", zap.Error(err), zap.Int64("msg_id", rm.ID))
		return
	}
	if inserted || updated {
		w.bus.Publish(bus.Event{
			Kind:      bus.KindMessageUpserted,
			Timestamp: evt.Timestamp,
			Payload:   map[string]int64{"conversation_id": rm.ConversationID, "msg_id": rm.ID},
		})
	}
}

// remember adds a key to the dedupe window, evicting the oldest entry
// once the ring is full.
func (w *Watcher) remember(key messageKey) {
	if _, ok := w.seen[key]; ok {
		return
	}
	old := w.ring[w.ringPos]
	if old != (messageKey{}) {
		delete(w.seen, old)
	}
	w.ring[w.ringPos] = key
	w.ringPos = (w.ringPos + 1) % seenRingSize
	w.seen[key] = struct{}{}
}
