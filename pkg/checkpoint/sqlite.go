package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"lumina/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id  TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore is the local-disk backend. One row per thread, the version
// compare-and-swap runs inside an immediate transaction so concurrent
// writers serialize on the database lock.
type SQLiteStore struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db %s: %w", path, err)
	}
	// SQLite writers serialize; a second connection only buys lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logx.NewLogger("checkpoint"),
	}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM checkpoints WHERE thread_id = ?", threadID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	return decode(payload)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint save: %w", err)
	}
	defer tx.Rollback()

	var storedVersion uint64
	var storedPayload []byte
	err = tx.QueryRowContext(ctx,
		"SELECT version, payload FROM checkpoints WHERE thread_id = ?", cp.ThreadID,
	).Scan(&storedVersion, &storedPayload)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read stored checkpoint %s: %w", cp.ThreadID, err)
	}

	var storedIDs []string
	if storedPayload != nil {
		stored, decErr := decode(storedPayload)
		if decErr != nil {
			return decErr
		}
		storedIDs = turnIDs(stored.Turns)
	}

	noop, err := validateSave(cp, storedVersion, storedIDs)
	if err != nil {
		return err
	}
	if noop {
		return nil
	}

	payload, err := encode(cp)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			version    = excluded.version,
			payload    = excluded.payload,
			updated_at = excluded.updated_at
		WHERE checkpoints.version = ?`,
		cp.ThreadID, cp.Version, payload, time.Now().UTC(), storedVersion,
	)
	if err != nil {
		return fmt.Errorf("write checkpoint %s: %w", cp.ThreadID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", cp.ThreadID, err)
	}
	s.logger.Debug("saved checkpoint %s v%d (%d bytes)", cp.ThreadID, cp.Version, len(payload))
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
