package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/transportuni/chatbot-api/apperror"
)

const tokenTypeBearer = "bearer"

// Messages for credential failures. Unknown user and wrong password share one message.
const (
	msgInvalidCredentials  = "invalid username or password"
	msgInactiveAccount     = "account is inactive"
	msgInvalidRefreshToken = "invalid refresh token"
)

// Service implements registration, login and token refresh.
type Service struct {
	store    AccountStore
	hasher   *PasswordHasher
	tokens   *TokenService
	resolver *Resolver
	logger   *slog.Logger
	// dummyDigest is compared against when the login name is unknown, so both
	// failure paths cost one bcrypt comparison.
	dummyDigest string
}

// NewService creates the auth service. Its dependencies are injected explicitly.
func NewService(store AccountStore, hasher *PasswordHasher, tokens *TokenService, resolver *Resolver, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy digest: %w", err)
	}
	return &Service{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		resolver:    resolver,
		logger:      logger,
		dummyDigest: dummy,
	}, nil
}

// Register creates an active, non-admin account and issues its first tokens.
// Username and email are trimmed before validation; emails are stored lowercase.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperror.NewValidationError("password must be at most 72 bytes", err)
		}
		return nil, apperror.NewInternalError("failed to hash password", err)
	}

	created, err := s.store.Create(ctx, &Account{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: digest,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "account registered", "account_id", created.ID.String(), "username", created.Username)

	tokens, err := s.issuePair(created.ID)
	if err != nil {
		return nil, err
	}
	return &RegisterResponse{Account: created, TokenResponse: *tokens}, nil
}

// Login checks the credentials and returns a fresh token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	account, err := s.store.FindByLogin(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if apperror.IsNotFound(err) {
			s.hasher.Verify(req.Password, s.dummyDigest)
			return nil, apperror.NewAuthError(msgInvalidCredentials, nil)
		}
		return nil, err
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		return nil, apperror.NewAuthError(msgInvalidCredentials, nil)
	}
	if !account.IsActive {
		return nil, apperror.NewForbiddenError(msgInactiveAccount, nil)
	}
	return s.issuePair(account.ID)
}

// Refresh exchanges a refresh token for a new access token. The refresh token is
// returned unchanged and stays valid until its own expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.tokens.VerifyKind(refreshToken, KindRefresh)
	if err != nil {
		return nil, apperror.NewAuthError(msgInvalidRefreshToken, err)
	}

	account, err := s.resolver.Resolve(ctx, claims.Subject)
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to load account", err)
	}
	if account == nil {
		return nil, apperror.NewAuthError(msgInvalidRefreshToken, nil)
	}

	access, expiresAt, err := s.tokens.IssueAccess(account.ID.String())
	if err != nil {
		return nil, apperror.NewInternalError("failed to issue access token", err)
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(expiresAt.Sub(s.tokens.clock()).Seconds()),
	}, nil
}

func (s *Service) issuePair(id uuid.UUID) (*TokenResponse, error) {
	access, expiresAt, err := s.tokens.IssueAccess(id.String())
	if err != nil {
		return nil, apperror.NewInternalError("failed to issue access token", err)
	}
	refresh, _, err := s.tokens.IssueRefresh(id.String())
	if err != nil {
		return nil, apperror.NewInternalError("failed to issue refresh token", err)
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(expiresAt.Sub(s.tokens.clock()).Seconds()),
	}, nil
}
