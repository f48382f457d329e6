package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	handle TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS direct_messages (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tokens_used INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_direct_messages_user ON direct_messages(user_id, created_at);

CREATE TABLE IF NOT EXISTS group_messages (
	id BIGSERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL,
	chat_title TEXT NOT NULL DEFAULT '',
	author_id BIGINT NOT NULL,
	author_handle TEXT NOT NULL DEFAULT '',
	author_display_name TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_group_messages_handle ON group_messages(LOWER(LTRIM(author_handle, '@')));
CREATE INDEX IF NOT EXISTS idx_group_messages_created ON group_messages(created_at);
`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a bounded connection
// pool (1..5 connections) and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MinConns = 1
	cfg.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUser creates or updates a user row. The id and creation timestamp
// are untouched on conflict.
func (s *PostgresStore) UpsertUser(ctx context.Context, id int64, handle, displayName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, handle, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET handle = EXCLUDED.handle, display_name = EXCLUDED.display_name
	`, id, handle, displayName)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", id, err)
	}
	return nil
}

// SaveDirectMessage appends one direct message.
func (s *PostgresStore) SaveDirectMessage(ctx context.Context, userID int64, role, content string, tokensUsed *int) error {
	if err := validateRole(role); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO direct_messages (user_id, role, content, tokens_used)
		VALUES ($1, $2, $3, $4)
	`, userID, role, content, tokensUsed)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23503 = foreign_key_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("save message for user %d: %w", userID, ErrUnknownUser)
		}
		return fmt.Errorf("save message for user %d: %w", userID, err)
	}
	return nil
}

// RecentDirectMessages returns the most recent messages in chronological order.
func (s *PostgresStore) RecentDirectMessages(ctx context.Context, userID int64, limit int) ([]DirectMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, role, content, tokens_used, created_at
		FROM direct_messages
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
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
func (s *PostgresStore) ClearDirectMessages(ctx context.Context, userID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM direct_messages WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear history for user %d: %w", userID, err)
	}
	return nil
}

// SaveGroupMessage appends one observed group message.
func (s *PostgresStore) SaveGroupMessage(ctx context.Context, msg *GroupMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO group_messages (chat_id, chat_title, author_id, author_handle, author_display_name, content)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ChatID, msg.ChatTitle, msg.AuthorID, msg.AuthorHandle, msg.AuthorDisplayName, msg.Content)
	if err != nil {
		return fmt.Errorf("save group message from %d: %w", msg.AuthorID, err)
	}
	return nil
}

// SearchGroupMessages returns matching group messages, newest first.
func (s *PostgresStore) SearchGroupMessages(ctx context.Context, handle, keyword string, limit int) ([]GroupMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, chat_title, author_id, author_handle, author_display_name, content, created_at
		FROM group_messages
		WHERE LOWER(LTRIM(author_handle, '@')) = $1
		  AND ($2 = '' OR content ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, NormalizeHandle(handle), keyword, limit)
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
func (s *PostgresStore) AggregateStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	since := time.Now().Add(-24 * time.Hour)
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM direct_messages),
			(SELECT COALESCE(SUM(tokens_used), 0) FROM direct_messages WHERE tokens_used IS NOT NULL),
			(SELECT COUNT(DISTINCT user_id) FROM direct_messages WHERE created_at >= $1)
	`, since).Scan(&stats.Users, &stats.Messages, &stats.TokensUsed, &stats.ActiveToday)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	return stats, nil
}

func reverseMessages(msgs []DirectMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
