package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/store"
	"github.com/matheus3301/tgvault/internal/sync"
)

// MessageService is the query and command surface over the vault. It
// owns no state of its own; everything delegates to the store and the
// sync service.
type MessageService struct {
	db     *store.DB
	syncer *sync.Service
	bus    *bus.Bus
	logger *zap.Logger
}

// NewMessageService creates a message service.
func NewMessageService(db *store.DB, syncer *sync.Service, b *bus.Bus, logger *zap.Logger) *MessageService {
	return &MessageService{db: db, syncer: syncer, bus: b, logger: logger}
}

// QueryMessages returns messages matching the filters.
func (s *MessageService) QueryMessages(conversationID int64, opts store.QueryOptions) ([]store.Message, error) {
	return s.db.QueryMessages(conversationID, opts)
}

// MessagesByDateRange returns messages inside [since, until].
func (s *MessageService) MessagesByDateRange(conversationID, since, until int64, limit int) ([]store.Message, error) {
	return s.db.MessagesByDateRange(conversationID, since, until, limit)
}

// GetMessage returns one message, or nil when unknown.
func (s *MessageService) GetMessage(conversationID, msgID int64) (*store.Message, error) {
	return s.db.GetMessage(conversationID, msgID)
}

// MessageHistory returns a message's audit log, oldest first.
func (s *MessageService) MessageHistory(conversationID, msgID int64) ([]store.Revision, error) {
	return s.db.ListRevisions(conversationID, msgID)
}

// FindConversations returns all conversations holding a message with
// the given remote id.
func (s *MessageService) FindConversations(msgID int64) ([]int64, error) {
	return s.db.FindConversationsContaining(msgID)
}

// ListAttachments returns a conversation's attachment index entries.
func (s *MessageService) ListAttachments(conversationID int64, opts store.ListAttachmentOptions) ([]store.Attachment, error) {
	return s.db.ListAttachments(conversationID, opts)
}

// GetStats returns aggregate counters, global with conversationID 0.
func (s *MessageService) GetStats(conversationID int64) (*store.Stats, error) {
	return s.db.GetStats(conversationID)
}

// MissingRanges reports the uncovered parts of a window without
// syncing them.
func (s *MessageService) MissingRanges(conversationID, since, until int64) ([]store.Range, error) {
	return s.db.MissingRanges(conversationID, since, until)
}

// SyncNow runs one tail-sync pass for a conversation.
func (s *MessageService) SyncNow(ctx context.Context, conversationID int64) error {
	return s.syncer.SyncRecent(ctx, conversationID)
}

// Backfill fills the uncovered parts of [since, until] before a query
// that needs the window complete.
func (s *MessageService) Backfill(ctx context.Context, conversationID, since, until int64) error {
	return s.syncer.SyncRange(ctx, conversationID, since, until)
}

// SendText enqueues an outgoing message and returns the client id the
// caller can track it by. Delivery is asynchronous through the sender.
func (s *MessageService) SendText(conversationID int64, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("message text is empty")
	}
	clientID := uuid.NewString()
	if err := s.db.QueueOutbox(clientID, conversationID, text); err != nil {
		return "", err
	}
	s.logger.Info("message queued",
		zap.String("client_id", clientID),
		zap.Int64("conversation_id", conversationID))
	return clientID, nil
}

// SendStatus reports the delivery state of a previously queued message.
func (s *MessageService) SendStatus(clientID string) (*store.OutboxEntry, error) {
	return s.db.OutboxEntryByClientID(clientID)
}

// RecordSuggestionFeedback logs what a suggestion led to.
func (s *MessageService) RecordSuggestionFeedback(conversationID int64, suggested, sent string, edited bool) error {
	return s.db.RecordFeedback(conversationID, suggested, sent, edited)
}

// RecentSuggestionFeedback returns the latest feedback entries.
func (s *MessageService) RecentSuggestionFeedback(conversationID int64, limit int) ([]store.FeedbackEntry, error) {
	return s.db.RecentFeedback(conversationID, limit)
}
