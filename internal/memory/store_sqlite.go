package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default Store implementation, backed by a single-table
// SQLite database. Schema migration beyond this initial shape is out of
// scope; remote sync layers consume this store through the Store interface.
type SQLiteStore struct {
	notifier
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		delete_suggested INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_content ON memories(content);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns all memories ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, delete_suggested, created_at, updated_at
		 FROM memories ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var suggested int
		if err := rows.Scan(&m.ID, &m.Content, &suggested, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.DeleteSuggested = suggested != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// Create stores a new memory.
func (s *SQLiteStore) Create(ctx context.Context, content string) (*Memory, error) {
	now := time.Now().UTC()
	m := Memory{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, content, delete_suggested, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)`,
		m.ID, m.Content, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	s.notify()
	return &m, nil
}

// Update replaces the content of the memory whose content equals target.
func (s *SQLiteStore) Update(ctx context.Context, target, content string) (*Memory, error) {
	m, err := s.findByContent(ctx, target)
	if err != nil {
		return nil, err
	}
	m.Content = content
	m.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, updated_at = ? WHERE id = ?`,
		m.Content, m.UpdatedAt, m.ID)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	s.notify()
	return m, nil
}

// SuggestDelete flags the memory whose content equals target.
func (s *SQLiteStore) SuggestDelete(ctx context.Context, target string) (*Memory, error) {
	m, err := s.findByContent(ctx, target)
	if err != nil {
		return nil, err
	}
	m.DeleteSuggested = true
	m.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET delete_suggested = 1, updated_at = ? WHERE id = ?`,
		m.UpdatedAt, m.ID)
	if err != nil {
		return nil, fmt.Errorf("suggest delete: %w", err)
	}
	s.notify()
	return m, nil
}

// Delete removes a memory by id. Used by the application after the user
// confirms a delete suggestion.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notify()
	return nil
}

func (s *SQLiteStore) findByContent(ctx context.Context, content string) (*Memory, error) {
	var m Memory
	var suggested int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, delete_suggested, created_at, updated_at
		 FROM memories WHERE content = ? ORDER BY created_at LIMIT 1`,
		content).Scan(&m.ID, &m.Content, &suggested, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find memory: %w", err)
	}
	m.DeleteSuggested = suggested != 0
	return &m, nil
}
