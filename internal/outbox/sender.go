package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/store"
)

// Sender drains the outbox and delivers messages through the remote
// source. Delivered messages are stored as outgoing history right away
// so they show up in queries without waiting for the next sync pass.
type Sender struct {
	db     *store.DB
	source remote.Source
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, source remote.Source, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:     db,
		source: source,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending delivers one batch of queued messages. Exposed so
// tests and shutdown paths can flush synchronously.
func (s *Sender) ProcessPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox(10)
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		claimed, err := s.db.MarkOutboxSending(entry.ClientID)
		if err != nil {
			s.logger.Error("failed to claim outbox entry", zap.Error(err), zap.String("client_id", entry.ClientID))
			continue
		}
		if !claimed {
			continue
		}

		sent, err := s.source.SendMessage(ctx, entry.ConversationID, entry.Body)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_id", entry.ClientID))
			if markErr := s.db.MarkOutboxFailed(entry.ClientID, err.Error()); markErr != nil {
				s.logger.Error("failed to mark failed", zap.Error(markErr), zap.String("client_id", entry.ClientID))
			}
			s.bus.Publish(bus.Event{
				Kind:      bus.KindOutboxFailed,
				Timestamp: time.Now(),
				Payload:   map[string]string{"client_id": entry.ClientID, "error": err.Error()},
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientID, sent.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_id", entry.ClientID))
		}

		// Mirror the accepted message into history immediately.
		body := entry.Body
		if _, _, err := s.db.UpsertMessage(&store.Message{
			ConversationID: entry.ConversationID,
			MsgID:          sent.ID,
			Text:           body,
			Outgoing:       true,
			Timestamp:      sent.Timestamp.Unix(),
		}); err != nil {
			s.logger.Error("failed to store sent message", zap.Error(err), zap.Int64("msg_id", sent.ID))
		}

		s.logger.Info("message sent",
			zap.String("client_id", entry.ClientID),
			zap.Int64("remote_msg_id", sent.ID))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindOutboxSent,
			Timestamp: time.Now(),
			Payload:   map[string]string{"client_id": entry.ClientID},
		})
	}
}
