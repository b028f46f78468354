package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db := openAt(t, filepath.Join(t.TempDir(), "vault.db"))
	return db
}

func openAt(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMessage(conv, msg, ts int64, text string) *Message {
	sender := int64(42)
	return &Message{
		ConversationID: conv,
		MsgID:          msg,
		SenderID:       &sender,
		Text:           text,
		Timestamp:      ts,
	}
}

func mustUpsert(t *testing.T, db *DB, m *Message) {
	t.Helper()
	if _, _, err := db.UpsertMessage(m); err != nil {
		t.Fatalf("upsert msg %d: %v", m.MsgID, err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	res, err := db.Migrate()
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if !res.Changed {
		t.Error("first migrate should apply changes")
	}
	if res.Version != 2 {
		t.Errorf("version = %d, want 2", res.Version)
	}
	if res.Dirty {
		t.Error("migration left dirty state")
	}

	res, err = db.Migrate()
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if res.Changed {
		t.Error("second migrate should be a no-op")
	}
	if res.Version != 2 {
		t.Errorf("version after no-op = %d, want 2", res.Version)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mustUpsert(t, db, testMessage(1, 10, 1000, "hello persistent world"))
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db = openAt(t, path)
	got, err := db.GetMessage(1, 10)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got == nil || got.Text != "hello persistent world" {
		t.Fatalf("message lost across reopen: %+v", got)
	}

	// Search index survives the reopen too.
	results, err := db.SearchMessages("persistent", SearchOptions{})
	if err != nil {
		t.Fatalf("search after reopen: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("search results = %d, want 1", len(results))
	}
}
