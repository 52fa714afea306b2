package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps documents in a single SQLite table. The version of a
// document is the xxhash64 fingerprint of its body, so a conditional
// write only succeeds if the body is byte-for-byte what the writer read.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		version TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Document, error) {
	doc := &Document{Key: key}
	err := s.db.QueryRowContext(ctx, `
		SELECT body, version FROM documents WHERE key = ?
	`, key).Scan(&doc.Data, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return doc, nil
}

func (s *SQLiteStore) PutIfVersion(ctx context.Context, key string, data []byte, expected string) (string, error) {
	version := fingerprint(data)
	now := time.Now().UTC()

	var (
		res sql.Result
		err error
	)
	if expected == "" {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO documents (key, body, version, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, data, version, now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE documents SET body = ?, version = ?, updated_at = ?
			WHERE key = ? AND version = ?
		`, data, version, now, key, expected)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite put %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("sqlite put %s: %w", key, err)
	}
	if n == 0 {
		return "", ErrVersionMismatch
	}
	return version, nil
}

func fingerprint(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

var _ DocumentStore = (*SQLiteStore)(nil)
