package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/store"
)

// Service pulls message history from the remote source into the vault.
// Every pass is resumable: messages upsert idempotently, the cursor
// only moves forward and coverage segments are recorded only for
// windows the source fully confirmed.
type Service struct {
	db         *store.DB
	source     remote.Source
	bus        *bus.Bus
	logger     *zap.Logger
	baseWait   time.Duration
	maxRetries int
}

// NewService creates a sync service.
func NewService(db *store.DB, source remote.Source, b *bus.Bus, logger *zap.Logger, cfg config.SyncConfig) *Service {
	baseMillis := cfg.BackoffBaseMillis
	if baseMillis <= 0 {
		baseMillis = 2000
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Service{
		db:         db,
		source:     source,
		bus:        b,
		logger:     logger,
		baseWait:   time.Duration(baseMillis) * time.Millisecond,
		maxRetries: maxRetries,
	}
}

// SyncRecent pulls everything newer than the conversation's cursor. The
// first pass on a conversation has no cursor and walks the full
// history.
func (s *Service) SyncRecent(ctx context.Context, conversationID int64) error {
	cursor, err := s.db.LastMessageID(conversationID)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	origin := store.OriginIncremental
	if cursor == 0 {
		origin = store.OriginFull
	}
	return s.syncWindow(ctx, conversationID, 0, time.Now().Unix(), cursor, origin)
}

// SyncRange fills the uncovered parts of [since, until]. Already
// covered sub-ranges are skipped entirely; each gap becomes its own
// pass so a failure in one gap does not lose the others' progress.
func (s *Service) SyncRange(ctx context.Context, conversationID, since, until int64) error {
	gaps, err := s.db.MissingRanges(conversationID, since, until)
	if err != nil {
		return fmt.Errorf("compute gaps: %w", err)
	}
	for _, gap := range gaps {
		if err := s.syncWindow(ctx, conversationID, gap.Start, gap.End, 0, store.OriginQuery); err != nil {
			return err
		}
	}
	return nil
}

// syncWindow streams one window and stores what falls inside it.
// Rate limits back off and resume the same stream; any other transport
// error aborts the pass with the cursor already advanced, so the retry
// resumes instead of restarting. Query-origin backfills never touch
// the cursor: they skip messages outside their window, and a skipped
// message must stay fetchable by the next tail sync.
func (s *Service) syncWindow(ctx context.Context, conversationID, since, until, minID int64, origin string) error {
	passID := uuid.NewString()
	log := s.logger.With(
		zap.String("pass_id", passID),
		zap.Int64("conversation_id", conversationID),
		zap.String("origin", origin),
	)
	log.Info("sync pass started", zap.Int64("since", since), zap.Int64("until", until))

	stream, err := s.source.StreamMessages(ctx, conversationID, remote.StreamOptions{MinID: minID})
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var (
		maxID       int64
		stored      int
		observedMin int64
		observedMax int64
		retries     int
	)

	for {
		msg, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		var rle *remote.RateLimitError
		if errors.As(err, &rle) {
			if retries >= s.maxRetries {
				log.Warn("rate limit retries exhausted, pass abandoned",
					zap.Int("retries", retries), zap.Int("stored", stored))
				s.finishCursor(conversationID, maxID, origin, log)
				return nil
			}
			wait := s.baseWait << retries
			if rle.RetryAfter > wait {
				wait = rle.RetryAfter
			}
			retries++
			log.Info("rate limited, backing off",
				zap.Duration("wait", wait), zap.Int("retry", retries))
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			s.finishCursor(conversationID, maxID, origin, log)
			return fmt.Errorf("stream message: %w", err)
		}

		if msg.ID > maxID {
			maxID = msg.ID
		}
		ts := msg.Date.Unix()
		if ts < since || ts > until {
			continue
		}

		if err := s.storeMessage(conversationID, msg); err != nil {
			s.finishCursor(conversationID, maxID, origin, log)
			return err
		}
		stored++
		if observedMin == 0 || ts < observedMin {
			observedMin = ts
		}
		if ts > observedMax {
			observedMax = ts
		}
	}

	s.finishCursor(conversationID, maxID, origin, log)

	// A confirmed-empty window still counts as covered: the source
	// walked it and found nothing.
	segStart, segEnd := observedMin, observedMax
	if stored == 0 {
		segStart, segEnd = since, until
	}
	if err := s.db.RecordSegment(conversationID, segStart, segEnd, origin); err != nil {
		return err
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindSyncSegment,
		Timestamp: time.Now(),
		Payload:   map[string]int64{"conversation_id": conversationID, "start": segStart, "end": segEnd},
	})

	log.Info("sync pass completed", zap.Int("stored", stored), zap.Int64("cursor", maxID))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindSyncPassDone,
		Timestamp: time.Now(),
		Payload:   map[string]int64{"conversation_id": conversationID, "stored": int64(stored)},
	})
	return nil
}

// storeMessage writes one remote message. Deletions seen during replay
// become soft deletes; an already deleted row is left untouched so a
// re-run does not churn the audit log.
func (s *Service) storeMessage(conversationID int64, rm *remote.Message) error {
	if rm.Deleted {
		existing, err := s.db.GetMessage(conversationID, rm.ID)
		if err != nil {
			return err
		}
		deletedTS := rm.Date.Unix()
		if rm.DeletedAt != nil {
			deletedTS = rm.DeletedAt.Unix()
		}
		if existing == nil {
			if _, _, err := s.db.UpsertMessage(convertMessage(conversationID, rm)); err != nil {
				return err
			}
		} else if existing.IsDeleted {
			return nil
		}
		if _, err := s.db.MarkDeleted(conversationID, rm.ID, deletedTS); err != nil {
			return err
		}
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageDeleted,
			Timestamp: time.Now(),
			Payload:   map[string]int64{"conversation_id": conversationID, "msg_id": rm.ID},
		})
		return nil
	}

	inserted, updated, err := s.db.UpsertMessage(convertMessage(conversationID, rm))
	if err != nil {
		return err
	}
	if inserted || updated {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageUpserted,
			Timestamp: time.Now(),
			Payload:   map[string]int64{"conversation_id": conversationID, "msg_id": rm.ID},
		})
	}
	return nil
}

func (s *Service) finishCursor(conversationID, maxID int64, origin string, log *zap.Logger) {
	if maxID == 0 || origin == store.OriginQuery {
		return
	}
	if err := s.db.AdvanceCursor(conversationID, maxID); err != nil {
		log.Error("failed to advance cursor", zap.Error(err))
	}
}

// convertMessage maps the wire shape to the store shape.
func convertMessage(conversationID int64, rm *remote.Message) *store.Message {
	m := &store.Message{
		ConversationID: conversationID,
		MsgID:          rm.ID,
		SenderID:       rm.SenderID,
		Outgoing:       rm.Outgoing,
		Timestamp:      rm.Date.Unix(),
		ReplyTo:        rm.ReplyTo,
	}
	if rm.Text != nil {
		m.Text = *rm.Text
	}
	if rm.MediaDesc != nil {
		m.MediaDesc = *rm.MediaDesc
	}
	if rm.EditedAt != nil {
		ts := rm.EditedAt.Unix()
		m.EditedAt = &ts
	}
	for _, a := range rm.Attachments {
		m.Attachments = append(m.Attachments, store.Attachment{
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

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
