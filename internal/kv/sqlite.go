package kv

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite is a Store backed by a SQLite file. It uses WAL mode with a busy
// timeout so counter writes from concurrent requests queue instead of
// failing, and prepared statements for the hot get/put path.
type SQLite struct {
	db        *sql.DB
	closeOnce sync.Once

	getStmt    *sql.Stmt
	putStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	purgeStmt  *sql.Stmt
}

// OpenSQLite opens (creating if needed) the SQLite-backed store at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("kv: db path cannot be empty")
	}

	// modernc's driver only honors _pragma-style query parameters.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv_entries(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT value FROM kv_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}

	s.putStmt, err = s.db.Prepare(`
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare put: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM kv_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}

	s.purgeStmt, err = s.db.Prepare(`
		DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?
	`)
	if err != nil {
		return fmt.Errorf("prepare purge: %w", err)
	}

	return nil
}

// Get returns the value for key, treating expired entries as absent.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, key, time.Now().Unix()).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key with the given ttl.
func (s *SQLite) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).Unix()
	}
	if _, err := s.putStmt.ExecContext(ctx, key, value, expiresAt, now.Unix()); err != nil {
		return fmt.Errorf("kv: put %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	return nil
}

// Purge physically removes expired rows and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int, error) {
	res, err := s.purgeStmt.ExecContext(ctx, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("kv: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("kv: purge rows affected: %w", err)
	}
	return int(n), nil
}

// Close releases the prepared statements and the database handle.
// Close is idempotent.
func (s *SQLite) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.getStmt, s.putStmt, s.deleteStmt, s.purgeStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})
	return closeErr
}
