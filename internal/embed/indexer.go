package embed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/store"
)

// Indexer embeds stored messages in the background so semantic search
// keeps up with sync without blocking it.
type Indexer struct {
	db       *store.DB
	provider Provider
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	batch    int
	cancel   context.CancelFunc
}

// NewIndexer creates a new embedding indexer.
func NewIndexer(db *store.DB, provider Provider, b *bus.Bus, logger *zap.Logger, batch int) *Indexer {
	if batch <= 0 {
		batch = 64
	}
	return &Indexer{
		db:       db,
		provider: provider,
		bus:      b,
		logger:   logger,
		interval: 15 * time.Second,
		batch:    batch,
	}
}

// Start begins polling for messages without a stored vector.
func (ix *Indexer) Start(ctx context.Context) {
	ctx, ix.cancel = context.WithCancel(ctx)
	go ix.loop(ctx)
}

// Stop stops the indexer loop.
func (ix *Indexer) Stop() {
	if ix.cancel != nil {
		ix.cancel()
	}
}

func (ix *Indexer) loop(ctx context.Context) {
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ix.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce embeds one batch of pending messages. Exposed so a sync pass
// can flush the backlog eagerly.
func (ix *Indexer) RunOnce(ctx context.Context) {
	msgs, err := ix.db.MessagesNeedingEmbedding(ix.batch)
	if err != nil {
		ix.logger.Error("failed to read embedding backlog", zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}

	vectors, err := ix.provider.Embed(ctx, texts)
	if err != nil {
		ix.logger.Error("embedding batch failed", zap.Error(err), zap.Int("batch", len(texts)))
		return
	}

	indexed := 0
	for i, m := range msgs {
		if err := ix.db.InsertEmbedding(m.ID, vectors[i]); err != nil {
			ix.logger.Error("failed to store embedding", zap.Error(err), zap.Int64("message_ref", m.ID))
			continue
		}
		indexed++
	}

	ix.logger.Info("embedded messages", zap.Int("count", indexed))
	ix.bus.Publish(bus.Event{
		Kind:      bus.KindEmbedIndexed,
		Timestamp: time.Now(),
		Payload:   map[string]int{"count": indexed},
	})
}
