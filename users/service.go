package users

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/auth"
)

// AdminStore is the persistence the administrative operations need.
type AdminStore interface {
	FindByUsername(ctx context.Context, username string) (*auth.Account, error)
	UpdateFlags(ctx context.Context, id uuid.UUID, isActive, isAdmin *bool) (*auth.Account, error)
}

// UserService implements account administration, used by the admin API and the CLI.
type UserService struct {
	store  AdminStore
	logger *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(store AdminStore, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{store: store, logger: logger}
}

// UpdateStatus sets the flags present in req on the account named username.
// Tokens already issued to a deactivated account stop resolving on their next use.
func (s *UserService) UpdateStatus(ctx context.Context, username string, req UpdateStatusRequest) (*auth.Account, error) {
	if req.IsActive == nil && req.IsAdmin == nil {
		return nil, apperror.NewBadRequestError("no fields provided for update", nil)
	}
	account, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateFlags(ctx, account.ID, req.IsActive, req.IsAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "account status updated",
		"account_id", updated.ID.String(), "username", updated.Username,
		"is_active", updated.IsActive, "is_admin", updated.IsAdmin)
	return updated, nil
}

// SetActive enables or disables an account.
func (s *UserService) SetActive(ctx context.Context, username string, active bool) (*auth.Account, error) {
	return s.UpdateStatus(ctx, username, UpdateStatusRequest{IsActive: &active})
}

// SetAdmin grants or revokes the admin flag.
func (s *UserService) SetAdmin(ctx context.Context, username string, admin bool) (*auth.Account, error) {
	return s.UpdateStatus(ctx, username, UpdateStatusRequest{IsAdmin: &admin})
}

// RequireAdmin returns the caller's account if it is an administrator. The flag is
// read from the account resolved for this request, so a revoked admin loses access
// on the next request.
func RequireAdmin(ctx context.Context) (*auth.Account, error) {
	account, err := auth.RequireAccount(ctx)
	if err != nil {
		return nil, err
	}
	if !account.IsAdmin {
		return nil, apperror.NewForbiddenError("admin privileges required", nil)
	}
	return account, nil
}
