// Package sqlite provides a durable core.MemoryStore backed by SQLite. It
// keeps the same naive keyword retrieval semantics as the in-memory store
// (LIKE match, newest first) while surviving restarts, which is enough for a
// single-node assistant; semantic retrieval belongs in a dedicated backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/solenelabs/aria/core"
)

// Store persists memory records in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at path and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing database connection and runs migrations.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Query implements core.MemoryStore with a LIKE match ordered newest first.
func (s *Store) Query(ctx context.Context, userID, text string, limit int) ([]core.Fragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata FROM memories
		WHERE user_id = ? AND content LIKE ?
		ORDER BY created_at DESC
		LIMIT ?`,
		userID, "%"+text+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var fragments []core.Fragment
	for rows.Next() {
		var (
			frag core.Fragment
			md   sql.NullString
		)
		if err := rows.Scan(&frag.ID, &frag.Content, &md); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		frag.Score = 1.0
		if md.Valid && md.String != "" {
			if err := json.Unmarshal([]byte(md.String), &frag.Metadata); err != nil {
				frag.Metadata = map[string]any{"raw": md.String}
			}
		}
		fragments = append(fragments, frag)
	}
	return fragments, rows.Err()
}

// Add implements core.MemoryStore.
func (s *Store) Add(ctx context.Context, userID, content string, metadata map[string]any) error {
	var md []byte
	if len(metadata) > 0 {
		var err error
		md, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		core.NewID(), userID, content, string(md), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}
