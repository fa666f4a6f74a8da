// Package sqlite persists committed transcript messages.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"voice-assist/internal/domain"
)

// Archive implements application.Archive on a SQLite file.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, creating its parent directory.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening archive at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging archive at %s: %w", path, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

func (a *Archive) Append(ctx context.Context, msg domain.Message) error {
	if msg.Pending {
		return nil
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (id, sender, text, created_at) VALUES (?, ?, ?, ?)`,
		msg.ID, string(msg.Sender), msg.Text, msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", msg.ID, err)
	}
	return nil
}

// Recent returns up to limit archived messages, oldest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, sender, text, created_at FROM (
			SELECT id, sender, text, created_at FROM messages
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m      domain.Message
			sender string
			millis int64
		)
		if err := rows.Scan(&m.ID, &sender, &m.Text, &millis); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		m.Sender = domain.Sender(sender)
		m.CreatedAt = time.UnixMilli(millis).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (a *Archive) Close() error {
	return a.db.Close()
}
