package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"tutorledger/internal/ledger"
)

// SQLiteLocal keeps one JSON snapshot per user in a local SQLite file.
type SQLiteLocal struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewSQLiteLocal opens (creating if needed) the database at path. ":memory:"
// gives a throwaway database.
func NewSQLiteLocal(path string, log zerolog.Logger) (*SQLiteLocal, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "create sqlite dir")
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping sqlite")
	}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshots (
		user_id      TEXT PRIMARY KEY,
		data         TEXT NOT NULL,
		last_updated DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return &SQLiteLocal{
		db:  db,
		log: log.With().Str("component", "local_sqlite").Logger(),
		now: time.Now,
	}, nil
}

// Read returns the stored snapshot, or a fresh one when none exists or the
// stored copy cannot be decoded.
func (s *SQLiteLocal) Read(ctx context.Context, userID string) (ledger.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewSnapshot(s.now()), nil
	}
	if err != nil {
		return ledger.Snapshot{}, errors.Wrapf(err, "read snapshot %s", userID)
	}
	snap, err := ledger.Decode([]byte(data))
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("stored snapshot unreadable, starting fresh")
		return ledger.NewSnapshot(s.now()), nil
	}
	fillCollections(&snap)
	return snap, nil
}

// Write replaces the user's snapshot in a single statement.
func (s *SQLiteLocal) Write(ctx context.Context, userID string, snap ledger.Snapshot) error {
	raw, err := snap.Encode()
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (user_id, data, last_updated, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			data = excluded.data,
			last_updated = excluded.last_updated,
			updated_at = excluded.updated_at
	`, userID, string(raw), snap.LastUpdated.UTC(), s.now().UTC())
	return errors.Wrapf(err, "write snapshot %s", userID)
}

// Close closes the database.
func (s *SQLiteLocal) Close() error { return s.db.Close() }

// fillCollections defaults absent collections without touching LastUpdated.
func fillCollections(snap *ledger.Snapshot) {
	ts := snap.LastUpdated
	snap.Normalize(ts)
	snap.LastUpdated = ts
}
