// Package storage caches chat history in a local SQLite database so the
// history view works offline and the admin keeps a durable transcript beyond
// the backend's replay window.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

// DB wraps the local chat-history database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the history database at path, creating parent
// directories as needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrency between the live appender and the
	// history reader.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_messages (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			sender    TEXT NOT NULL,
			content   TEXT NOT NULL,
			type      TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			UNIQUE (sender, type, timestamp, content)
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chat_messages table: %w", err)
	}

	return &DB{db: db, path: path}, nil
}

// Append stores one message. Duplicates (same sender, type, timestamp and
// content, e.g. a replayed history entry already cached) are ignored.
func (d *DB) Append(msg signaling.ChatMessage) error {
	_, err := d.db.Exec(`
		INSERT OR IGNORE INTO chat_messages (sender, content, type, timestamp)
		VALUES (?, ?, ?, ?)
	`, msg.Sender, msg.Content, string(msg.Type), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// SaveMessages stores a batch in one transaction, typically the backend's
// history replay.
func (d *DB) SaveMessages(msgs []signaling.ChatMessage) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO chat_messages (sender, content, type, timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		if _, err := stmt.Exec(msg.Sender, msg.Content, string(msg.Type), msg.Timestamp); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit cached messages, oldest first.
func (d *DB) Recent(limit int) ([]signaling.ChatMessage, error) {
	rows, err := d.db.Query(`
		SELECT sender, content, type, timestamp FROM (
			SELECT id, sender, content, type, timestamp
			FROM chat_messages ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []signaling.ChatMessage
	for rows.Next() {
		var msg signaling.ChatMessage
		var typ string
		if err := rows.Scan(&msg.Sender, &msg.Content, &typ, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = signaling.MessageType(typ)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Count returns the number of cached messages.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&n)
	return n, err
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}
