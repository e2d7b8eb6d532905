package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/avolkov/maildigest/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite
// database. The pipeline is the single writer of cursor state; the
// conditional UPDATEs below make advancement monotonic even if two
// runs race on the same row.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetCursor returns the cursor for a folder. A folder that has never
// been processed yields a zero cursor with the folder name set.
func (s *SQLiteStore) GetCursor(
	ctx context.Context,
	folder string,
) (model.Cursor, error) {
	var c model.Cursor
	err := s.db.GetContext(ctx, &c,
		"SELECT folder, uidvalidity, last_uid FROM cursors WHERE folder = ?",
		folder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cursor{Folder: folder}, nil
	}
	if err != nil {
		return model.Cursor{}, fmt.Errorf("getting cursor for %s: %w", folder, err)
	}
	return c, nil
}

// Reconcile compares the observed UIDVALIDITY with the stored one.
// On a mismatch the cursor resets to 0 and adopts the new token; this
// is the only legal way last_uid decreases. On a match the stored
// floor is returned without any write.
func (s *SQLiteStore) Reconcile(
	ctx context.Context,
	folder, observedUIDValidity string,
) (uint32, error) {
	cur, err := s.GetCursor(ctx, folder)
	if err != nil {
		return 0, err
	}

	if cur.UIDValidity == observedUIDValidity {
		return cur.LastUID, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cursors (folder, uidvalidity, last_uid, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(folder) DO UPDATE SET
			uidvalidity = excluded.uidvalidity,
			last_uid = 0,
			updated_at = excluded.updated_at`,
		folder, observedUIDValidity, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("resetting cursor for %s: %w", folder, err)
	}

	return 0, nil
}

// AdvanceCursor moves the cursor forward to newLastUID. A value not
// greater than the stored one is a silent no-op, so a batch can never
// move the cursor backward.
func (s *SQLiteStore) AdvanceCursor(
	ctx context.Context,
	folder string,
	newLastUID uint32,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (folder, uidvalidity, last_uid, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(folder) DO UPDATE SET
			last_uid = excluded.last_uid,
			updated_at = excluded.updated_at
		WHERE excluded.last_uid > cursors.last_uid`,
		folder, newLastUID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("advancing cursor for %s: %w", folder, err)
	}
	return nil
}

// GetPaused reports whether automatic digests are paused.
func (s *SQLiteStore) GetPaused(ctx context.Context) (bool, error) {
	v, err := s.getSetting(ctx, "paused")
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SetPaused toggles the automatic digest pause flag.
func (s *SQLiteStore) SetPaused(ctx context.Context, paused bool) error {
	v := "0"
	if paused {
		v = "1"
	}
	return s.setSetting(ctx, "paused", v)
}

// RecordRun persists the outcome of one digest run. A missing ID is
// filled in with a new UUID.
func (s *SQLiteStore) RecordRun(ctx context.Context, r model.RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, folder, started_at, finished_at, total, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Folder,
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
		r.Total, r.Failed, r.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// LastRun returns the most recent run record for a folder, or nil when
// no run has been recorded yet.
func (s *SQLiteStore) LastRun(
	ctx context.Context,
	folder string,
) (*model.RunRecord, error) {
	var r model.RunRecord
	err := s.db.GetContext(ctx, &r, `
		SELECT id, folder, started_at, finished_at, total, failed, error
		FROM runs WHERE folder = ?
		ORDER BY started_at DESC LIMIT 1`,
		folder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting last run for %s: %w", folder, err)
	}
	return &r, nil
}

func (s *SQLiteStore) getSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, "SELECT v FROM settings WHERE k = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLiteStore) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (k, v) VALUES (?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}
