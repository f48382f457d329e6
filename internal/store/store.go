// Package store provides durable persistence for users, direct messages,
// and archived group messages.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message roles for direct messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrUnknownUser is returned when a direct message references a user id with
// no user row. Callers upsert the user before saving, so hitting this is a
// programming error in the calling code.
var ErrUnknownUser = errors.New("store: unknown user")

// User is an identity record, created on first interaction.
type User struct {
	ID          int64     `json:"id"`
	Handle      string    `json:"handle,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DirectMessage is one turn in a one-to-one conversation.
type DirectMessage struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokensUsed *int      `json:"tokens_used,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GroupMessage is one observed message in a multi-party chat. Append-only.
type GroupMessage struct {
	ID                int64     `json:"id"`
	ChatID            int64     `json:"chat_id"`
	ChatTitle         string    `json:"chat_title,omitempty"`
	AuthorID          int64     `json:"author_id"`
	AuthorHandle      string    `json:"author_handle,omitempty"`
	AuthorDisplayName string    `json:"author_display_name,omitempty"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
}

// Stats holds aggregate usage counters.
type Stats struct {
	Users       int64 `json:"users"`
	Messages    int64 `json:"messages"`
	TokensUsed  int64 `json:"tokens_used"`
	ActiveToday int64 `json:"active_today"`
}

// Store defines the interface for persistent storage.
// Both PostgresStore and SQLiteStore implement this interface.
type Store interface {
	// UpsertUser creates the user if absent; if present, overwrites handle
	// and display name. The id and creation timestamp never change.
	UpsertUser(ctx context.Context, id int64, handle, displayName string) error
	// SaveDirectMessage appends one turn. Returns ErrUnknownUser if userID
	// has no user row.
	SaveDirectMessage(ctx context.Context, userID int64, role, content string, tokensUsed *int) error
	// RecentDirectMessages returns up to limit most recent messages for the
	// user, in chronological order. No history yields an empty slice.
	RecentDirectMessages(ctx context.Context, userID int64, limit int) ([]DirectMessage, error)
	// ClearDirectMessages deletes all direct messages for the user.
	// Deleting zero rows is not an error.
	ClearDirectMessages(ctx context.Context, userID int64) error
	// SaveGroupMessage appends one observed group message unconditionally.
	SaveGroupMessage(ctx context.Context, msg *GroupMessage) error
	// SearchGroupMessages returns up to limit messages whose stored handle
	// matches handle (case-insensitive, leading "@" stripped on both sides),
	// newest first. A non-empty keyword additionally requires a
	// case-insensitive substring match on content.
	SearchGroupMessages(ctx context.Context, handle, keyword string, limit int) ([]GroupMessage, error)
	// AggregateStats returns usage totals and the count of distinct users
	// with at least one direct message in the trailing 24 hours.
	AggregateStats(ctx context.Context) (*Stats, error)

	Ping(ctx context.Context) error
	Close()
}

// Open selects a backend from the connection string: postgres:// and
// postgresql:// URLs open a pgx pool, anything else is treated as a SQLite
// file path.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL)
	default:
		return NewSQLiteStore(databaseURL)
	}
}

// NormalizeHandle strips a leading "@" and lowercases, matching the
// comparison the search queries perform on stored handles.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

func validateRole(role string) error {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	default:
		return fmt.Errorf("store: invalid role %q", role)
	}
}
