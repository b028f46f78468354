package embed

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/store"
)

type fakeProvider struct {
	calls [][]string
	fail  bool
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.fail {
		return nil, errors.New("provider down")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

func testStore(t *testing.T) *store.DB {
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

func seedMessage(t *testing.T, db *store.DB, msgID, ts int64, text string) {
	t.Helper()
	_, _, err := db.UpsertMessage(&store.Message{
		ConversationID: 1,
		MsgID:          msgID,
		Text:           text,
		Timestamp:      ts,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestIndexerRunOnce(t *testing.T) {
	db := testStore(t)
	seedMessage(t, db, 1, 1000, "first message")
	seedMessage(t, db, 2, 2000, "second")

	provider := &fakeProvider{}
	b := bus.New()
	events, unsub := b.Subscribe("embed.", 8)
	defer unsub()

	ix := NewIndexer(db, provider, b, zap.NewNop(), 10)
	ix.RunOnce(context.Background())

	if len(provider.calls) != 1 || len(provider.calls[0]) != 2 {
		t.Fatalf("provider calls = %+v, want one batch of 2", provider.calls)
	}

	embedded, err := db.EmbeddedMessages(1, 0, 0)
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	if len(embedded) != 2 {
		t.Fatalf("embedded = %d, want 2", len(embedded))
	}

	select {
	case ev := <-events:
		if ev.Kind != bus.KindEmbedIndexed {
			t.Errorf("event kind = %q", ev.Kind)
		}
	default:
		t.Error("no indexed event published")
	}

	// Second pass finds nothing and stays silent.
	ix.RunOnce(context.Background())
	if len(provider.calls) != 1 {
		t.Fatalf("provider called on empty backlog: %+v", provider.calls)
	}
}

func TestIndexerProviderFailure(t *testing.T) {
	db := testStore(t)
	seedMessage(t, db, 1, 1000, "unreachable")

	provider := &fakeProvider{fail: true}
	ix := NewIndexer(db, provider, bus.New(), zap.NewNop(), 10)
	ix.RunOnce(context.Background())

	// Nothing stored; the backlog stays for the next pass.
	need, err := db.MessagesNeedingEmbedding(10)
	if err != nil {
		t.Fatalf("needing: %v", err)
	}
	if len(need) != 1 {
		t.Fatalf("backlog = %d, want 1", len(need))
	}
}
