package store

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/tgvault/internal/store/migrations"
)

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate runs all pending migrations on the database, then establishes
// the full-text index. Safe to call on a fresh file or one created by
// any earlier schema version; a crash mid-migration followed by a retry
// converges to the same end state.
func (db *DB) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	err = m.Up()
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	if err := db.ensureSearchIndex(); err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	version, dirty, _ := m.Version()
	return &MigrateResult{
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}

// ensureSearchIndex (re)establishes the FTS5 table and its sync
// triggers. Runs unconditionally on every open; all DDL is IF NOT
// EXISTS so "already there" is success, not an error.
func (db *DB) ensureSearchIndex() error {
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			text,
			media_desc,
			content='messages',
			content_rowid='id'
		);

		CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, text, media_desc)
			VALUES (new.id, new.text, new.media_desc);
		END;

		CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, text, media_desc)
			VALUES ('delete', old.id, old.text, old.media_desc);
		END;

		CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE OF text, media_desc ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, text, media_desc)
			VALUES ('delete', old.id, old.text, old.media_desc);
			INSERT INTO messages_fts(rowid, text, media_desc)
			VALUES (new.id, new.text, new.media_desc);
		END;
	`)
	return err
}
