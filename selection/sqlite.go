package selection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/internal/clock"
)

// SQLiteStore keeps selections in a local database file so a command-line
// console resumes the previous selection on its next run. The payload is the
// same CBOR encoding the redis driver stores; the version column guards
// updates.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLiteStore opens (and creates, if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", consolesync.ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create selection dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open selection database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, clock: clock.Real()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate selection database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS selections (
			user_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, sel *Selection) error {
	next := *sel
	if err := firstVersion(&next, s.clock.Now()); err != nil {
		return err
	}
	payload, err := marshal(&next)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO selections (user_id, version, payload) VALUES (?, ?, ?) ON CONFLICT(user_id) DO NOTHING",
		next.UserID, next.Version, payload,
	)
	if err != nil {
		return fmt.Errorf("insert selection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return consolesync.ErrAlreadyExists
	}
	*sel = next
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Selection, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM selections WHERE user_id = ?", userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query selection: %w", err)
	}

	var sel Selection
	if err := unmarshal(payload, &sel); err != nil {
		return nil, err
	}
	return &sel, nil
}

// Update implements Store. The write only lands if the row still holds the
// version the stored selection was read at.
func (s *SQLiteStore) Update(ctx context.Context, sel *Selection) error {
	stored, err := s.Get(ctx, sel.UserID)
	if err != nil {
		return err
	}
	if stored == nil {
		return consolesync.ErrNotFound
	}
	next, err := nextVersion(*stored, *sel, s.clock.Now())
	if err != nil {
		return err
	}
	payload, err := marshal(&next)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE selections SET version = ?, payload = ? WHERE user_id = ? AND version = ?",
		next.Version, payload, next.UserID, stored.Version,
	)
	if err != nil {
		return fmt.Errorf("update selection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return consolesync.ErrVersionConflict
	}
	*sel = next
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM selections WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete selection: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
