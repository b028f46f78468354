package sync

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/store"
)

type fakeStream struct {
	msgs []*remote.Message
	idx  int
	// rateLimits is the number of rate-limit errors to inject before
	// the first message is served.
	rateLimits int
	retryAfter time.Duration
}

func (s *fakeStream) Next(_ context.Context) (*remote.Message, error) {
	if s.rateLimits > 0 {
		s.rateLimits--
		return nil, &remote.RateLimitError{RetryAfter: s.retryAfter}
	}
	if s.idx >= len(s.msgs) {
		return nil, io.EOF
	}
	m := s.msgs[s.idx]
	s.idx++
	return m, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeSource struct {
	msgs        []*remote.Message
	rateLimits  int
	retryAfter  time.Duration
	streamCalls int
}

func (f *fakeSource) StreamMessages(_ context.Context, conversationID int64, opts remote.StreamOptions) (remote.MessageStream, error) {
	f.streamCalls++
	var filtered []*remote.Message
	for _, m := range f.msgs {
		if m.ConversationID == conversationID && m.ID > opts.MinID {
			filtered = append(filtered, m)
		}
	}
	limits := f.rateLimits
	f.rateLimits = 0
	return &fakeStream{msgs: filtered, rateLimits: limits, retryAfter: f.retryAfter}, nil
}

func (f *fakeSource) CountMessages(_ context.Context, conversationID int64) (int, error) {
	n := 0
	for _, m := range f.msgs {
		if m.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

func (f *fakeSource) SendMessage(_ context.Context, _ int64, _ string) (*remote.SentMessage, error) {
	return nil, io.ErrClosedPipe
}

func (f *fakeSource) DownloadAttachment(_ context.Context, _ remote.AttachmentLocator) ([]byte, error) {
	return nil, io.ErrClosedPipe
}

func remoteMessage(conv, id int64, ts int64, text string) *remote.Message {
	return &remote.Message{
		ID:             id,
		ConversationID: conv,
		Text:           &text,
		Date:           time.Unix(ts, 0),
	}
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testService(db *store.DB, source remote.Source, b *bus.Bus) *Service {
	return NewService(db, source, b, zap.NewNop(), config.SyncConfig{
		BackoffBaseMillis: 1,
		MaxRetries:        3,
	})
}

func TestSyncRecentFullThenIncremental(t *testing.T) {
	db := testDB(t)
	source := &fakeSource{msgs: []*remote.Message{
		remoteMessage(1, 10, 1000, "one"),
		remoteMessage(1, 11, 2000, "two"),
		remoteMessage(1, 12, 3000, "three"),
	}}
	svc := testService(db, source, bus.New())

	if err := svc.SyncRecent(context.Background(), 1); err != nil {
		t.Fatalf("sync: %v", err)
	}

	msgs, _ := db.QueryMessages(1, store.QueryOptions{})
	if len(msgs) != 3 {
		t.Fatalf("stored = %d, want 3", len(msgs))
	}
	cursor, _ := db.LastMessageID(1)
	if cursor != 12 {
		t.Fatalf("cursor = %d, want 12", cursor)
	}
	segs, _ := db.Segments(1)
	if len(segs) != 1 || segs[0].Origin != store.OriginFull {
		t.Fatalf("segments = %+v, want one full segment", segs)
	}
	if segs[0].StartTS != 1000 || segs[0].EndTS != 3000 {
		t.Fatalf("segment span = [%d, %d], want [1000, 3000]", segs[0].StartTS, segs[0].EndTS)
	}

	// A later message arrives; the next pass streams only past the cursor.
	source.msgs = append(source.msgs, remoteMessage(1, 13, 4000, "four"))
	if err := svc.SyncRecent(context.Background(), 1); err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	msgs, _ = db.QueryMessages(1, store.QueryOptions{})
	if len(msgs) != 4 {
		t.Fatalf("stored after incremental = %d, want 4", len(msgs))
	}
	segs, _ = db.Segments(1)
	if len(segs) != 2 || segs[1].Origin != store.OriginIncremental {
		t.Fatalf("segments = %+v, want full then incremental", segs)
	}
	revs, _ := db.ListRevisions(1, 10)
	if len(revs) != 1 {
		t.Fatalf("replayed message gained revisions: %+v", revs)
	}
}

func TestSyncRangeBacksOffOnRateLimit(t *testing.T) {
	db := testDB(t)
	source := &fakeSource{
		msgs: []*remote.Message{
			remoteMessage(1, 10, 100, "in range"),
			remoteMessage(1, 11, 300, "also in range"),
			remoteMessage(1, 12, 900, "outside"),
		},
		rateLimits: 1,
		retryAfter: 2 * time.Millisecond,
	}
	svc := testService(db, source, bus.New())

	if err := svc.SyncRange(context.Background(), 1, 90, 320); err != nil {
		t.Fatalf("sync range: %v", err)
	}

	msgs, _ := db.QueryMessages(1, store.QueryOptions{})
	if len(msgs) != 2 {
		t.Fatalf("stored = %d, want 2 (out-of-range skipped)", len(msgs))
	}
	segs, _ := db.Segments(1)
	if len(segs) != 1 || segs[0].Origin != store.OriginQuery {
		t.Fatalf("segments = %+v", segs)
	}
	if segs[0].StartTS != 100 || segs[0].EndTS != 300 {
		t.Fatalf("segment span = [%d, %d], want observed [100, 300]", segs[0].StartTS, segs[0].EndTS)
	}

	// The second pass fills only the edge gaps and confirms them empty.
	if err := svc.SyncRange(context.Background(), 1, 90, 320); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	gaps, _ := db.MissingRanges(1, 90, 320)
	if len(gaps) != 0 {
		t.Fatalf("gaps after second pass = %v, want none", gaps)
	}

	// Fully covered now; a third call opens no stream at all.
	calls := source.streamCalls
	if err := svc.SyncRange(context.Background(), 1, 90, 320); err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if source.streamCalls != calls {
		t.Fatalf("covered range re-streamed: %d calls", source.streamCalls)
	}
}

func TestSyncConfirmedEmptyWindow(t *testing.T) {
	db := testDB(t)
	source := &fakeSource{}
	svc := testService(db, source, bus.New())

	if err := svc.SyncRange(context.Background(), 1, 500, 600); err != nil {
		t.Fatalf("sync range: %v", err)
	}
	segs, _ := db.Segments(1)
	if len(segs) != 1 || segs[0].StartTS != 500 || segs[0].EndTS != 600 {
		t.Fatalf("segments = %+v, want the requested window recorded", segs)
	}
	gaps, _ := db.MissingRanges(1, 500, 600)
	if len(gaps) != 0 {
		t.Fatalf("gaps = %v, want none after confirmed-empty pass", gaps)
	}
}

func TestSyncAbandonsAfterRetriesExhausted(t *testing.T) {
	db := testDB(t)
	source := &fakeSource{
		msgs:       []*remote.Message{remoteMessage(1, 10, 100, "unreachable")},
		rateLimits: 10,
		retryAfter: time.Millisecond,
	}
	svc := testService(db, source, bus.New())

	// Exhausted retries end the pass without an error; the window stays
	// uncovered for the next attempt.
	if err := svc.SyncRange(context.Background(), 1, 0, 1000); err != nil {
		t.Fatalf("sync range: %v", err)
	}
	segs, _ := db.Segments(1)
	if len(segs) != 0 {
		t.Fatalf("abandoned pass recorded coverage: %+v", segs)
	}
	msgs, _ := db.QueryMessages(1, store.QueryOptions{})
	if len(msgs) != 0 {
		t.Fatalf("abandoned pass stored messages: %+v", msgs)
	}
}

func TestSyncStoresRemoteDeletion(t *testing.T) {
	db := testDB(t)
	deletedAt := time.Unix(2000, 0)
	gone := remoteMessage(1, 10, 1000, "was here")
	gone.Deleted = true
	gone.DeletedAt = &deletedAt
	source := &fakeSource{msgs: []*remote.Message{gone}}
	svc := testService(db, source, bus.New())

	if err := svc.SyncRecent(context.Background(), 1); err != nil {
		t.Fatalf("sync: %v", err)
	}

	m, _ := db.GetMessage(1, 10)
	if m == nil || !m.IsDeleted || m.DeletedAt == nil || *m.DeletedAt != 2000 {
		t.Fatalf("deleted message = %+v", m)
	}

	// Replaying the deletion leaves the audit log alone.
	revs1, _ := db.ListRevisions(1, 10)
	if err := svc.SyncRecent(context.Background(), 1); err != nil {
		t.Fatalf("replay: %v", err)
	}
	revs2, _ := db.ListRevisions(1, 10)
	if len(revs1) != len(revs2) {
		t.Fatalf("revisions changed on replay: %d -> %d", len(revs1), len(revs2))
	}
}
