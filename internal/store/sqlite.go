package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	handle TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS direct_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tokens_used INTEGER,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_direct_messages_user ON direct_messages(user_id, created_at);

CREATE TABLE IF NOT EXISTS group_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL,
	chat_title TEXT NOT NULL DEFAULT '',
	author_id INTEGER NOT NULL,
	author_handle TEXT NOT NULL DEFAULT '',
	author_display_name TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_group_messages_handle ON group_messages(author_handle);
CREATE INDEX IF NOT EXISTS idx_group_messages_created ON group_messages(created_at);
`

// SQLiteStore handles SQLite database operations. It backs local deployments
// and tests; the query surface matches PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database at the given
// path and applies the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; keep the pool bounded accordingly.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser creates or updates a user row.
func (s *SQLiteStore) UpsertUser(ctx context.Context, id int64, handle, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, handle, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET handle = excluded.handle, display_name = excluded.display_name
	`, id, handle, displayName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", id, err)
	}
	return nil
}

// SaveDirectMessage appends one direct message.
func (s *SQLiteStore) SaveDirectMessage(ctx context.Context, userID int64, role, content string, tokensUsed *int) error {
	if err := validateRole(role); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO direct_messages (user_id, role, content, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, role, content, tokensUsed, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return fmt.Errorf("save message for user %d: %w", userID, ErrUnknownUser)
		}
		return fmt.Errorf("save message for user %d: %w", userID, err)
	}
	return nil
}

// RecentDirectMessages returns the most recent messages in chronological order.
func (s *SQLiteStore) RecentDirectMessages(ctx context.Context, userID int64, limit int) ([]DirectMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, tokens_used, created_at
		FROM direct_messages
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history for user %d: %w", userID, err)
	}
	defer rows.Close()

	var msgs []DirectMessage
	for rows.Next() {
		var m DirectMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history for user %d: %w", userID, err)
	}
	reverseMessages(msgs)
	return msgs, nil
}

// ClearDirectMessages deletes all direct messages for the user.
func (s *SQLiteStore) ClearDirectMessages(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM direct_messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear history for user %d: %w", userID, err)
	}
	return nil
}

// SaveGroupMessage appends one observed group message.
func (s *SQLiteStore) SaveGroupMessage(ctx context.Context, msg *GroupMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_messages (chat_id, chat_title, author_id, author_handle, author_display_name, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ChatID, msg.ChatTitle, msg.AuthorID, msg.AuthorHandle, msg.AuthorDisplayName, msg.Content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save group message from %d: %w", msg.AuthorID, err)
	}
	return nil
}

// SearchGroupMessages returns matching group messages, newest first.
func (s *SQLiteStore) SearchGroupMessages(ctx context.Context, handle, keyword string, limit int) ([]GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, chat_title, author_id, author_handle, author_display_name, content, created_at
		FROM group_messages
		WHERE LOWER(LTRIM(author_handle, '@')) = ?
		  AND (? = '' OR LOWER(content) LIKE '%' || LOWER(?) || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, NormalizeHandle(handle), keyword, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("search group messages for %q: %w", handle, err)
	}
	defer rows.Close()

	var msgs []GroupMessage
	for rows.Next() {
		var m GroupMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.ChatTitle, &m.AuthorID, &m.AuthorHandle, &m.AuthorDisplayName, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read group messages for %q: %w", handle, err)
	}
	return msgs, nil
}

// AggregateStats returns usage totals.
func (s *SQLiteStore) AggregateStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	since := time.Now().UTC().Add(-24 * time.Hour)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM direct_messages),
			(SELECT COALESCE(SUM(tokens_used), 0) FROM direct_messages WHERE tokens_used IS NOT NULL),
			(SELECT COUNT(DISTINCT user_id) FROM direct_messages WHERE created_at >= ?)
	`, since).Scan(&stats.Users, &stats.Messages, &stats.TokensUsed, &stats.ActiveToday)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	return stats, nil
}
