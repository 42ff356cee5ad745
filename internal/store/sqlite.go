package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable ShareStore backed by a single-table SQLite
// database. Entries are stored as JSON blobs under their key string, mirroring
// the "each ShareEntry serialized as JSON under its key string" persistence
// model this module inherits from its reference implementation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed share store
// at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS shares (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create shares table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, entry ShareEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling share entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO shares (key, value) VALUES (?, ?)",
		entry.Key, value)
	if err != nil {
		return fmt.Errorf("inserting share entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (ShareEntry, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM shares WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return ShareEntry{}, ErrNotFound
	}
	if err != nil {
		return ShareEntry{}, fmt.Errorf("querying share entry: %w", err)
	}

	var entry ShareEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return ShareEntry{}, fmt.Errorf("unmarshaling share entry: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]ShareEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT value FROM shares")
	if err != nil {
		return nil, fmt.Errorf("querying share entries: %w", err)
	}
	defer rows.Close()

	var entries []ShareEntry
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scanning share entry: %w", err)
		}
		var entry ShareEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil, fmt.Errorf("unmarshaling share entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, entry ShareEntry) error {
	if _, err := s.Get(ctx, entry.Key); err != nil {
		return err
	}
	return s.Insert(ctx, entry)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM shares WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting share entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
