// Package auth implements request-scoped authentication for the chatbot API.
// This file, `models.go`, defines the Account entity and the narrow store contract
// the rest of the package depends on.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account represents a registered principal.
// The `json:"-"` tag on PasswordHash keeps the digest out of every API response.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountFinder looks an account up by its identifier.
// Implementations return an apperror NotFound error when no account has that id.
type AccountFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

// AccountStore is the persistence contract for accounts.
// Username and email are each unique; Create returns an apperror Conflict error
// naming the duplicated field when either is already taken.
type AccountStore interface {
	AccountFinder
	// FindByLogin matches login against the username first, then the lowercased email.
	FindByLogin(ctx context.Context, login string) (*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
}
