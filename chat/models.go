// Package chat persists a user's conversation history. Every read and delete is
// scoped to the requesting account through the ownership guard.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roles a message may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Pagination bounds for history listing.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Message is one saved exchange: the user's message and, optionally, the answer given.
type Message struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Response  *string   `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Page is one page of an account's history, newest first.
type Page struct {
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Items  []Message `json:"items"`
}

// Store is the persistence contract for chat messages. Lookups that take an
// owner return an apperror NotFound error when owner has no such message, whether
// or not the message exists for someone else.
type Store interface {
	Create(ctx context.Context, msg *Message) (*Message, error)
	// List returns owner's messages ordered by timestamp descending, ties broken
	// by insertion order descending, plus the owner's total message count.
	List(ctx context.Context, owner uuid.UUID, limit, offset int) ([]Message, int64, error)
	FindOwned(ctx context.Context, owner, id uuid.UUID) (*Message, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
	DeleteAll(ctx context.Context, owner uuid.UUID) (int64, error)
}
