// Package store defines the Chat Store contract and its SQLite
// implementation. Every operation that touches a chat validates user
// ownership first; a failed check is a no-op or an empty result, never
// someone else's data.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotOwner is returned when a user operates on a chat they don't own.
var ErrNotOwner = errors.New("chat does not belong to user")

// Chat is one conversation owned by exactly one user.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a chat.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"` // user, assistant, system, tool
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatStore is the persistence contract for chats and ordered messages.
type ChatStore interface {
	CreateChat(ctx context.Context, userID, title string) (*Chat, error)
	Chats(ctx context.Context, userID string) ([]Chat, error)

	// SaveMessage persists a turn after validating ownership.
	SaveMessage(ctx context.Context, chatID, role, content, userID string) error

	// Messages returns up to limit messages oldest first. limit <= 0
	// means no limit.
	Messages(ctx context.Context, chatID, userID string, limit int) ([]Message, error)

	UpdateChatTitle(ctx context.Context, chatID, userID, title string) error
	DeleteChat(ctx context.Context, chatID, userID string) error

	ChatBelongsToUser(ctx context.Context, chatID, userID string) (bool, error)
	MessageBelongsToUser(ctx context.Context, messageID int64, userID string) (bool, error)
}

// Policy is the Identity-policy hook consulted before tool dispatch.
// A non-nil error vetoes execution.
type Policy interface {
	AllowTool(userID, toolName string) error
}

// AllowAll is the default Policy; it never vetoes.
type AllowAll struct{}

// AllowTool implements Policy.
func (AllowAll) AllowTool(userID, toolName string) error { return nil }
