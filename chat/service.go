package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/auth"
)

// resourceName is how chat messages are named in not-found responses.
const resourceName = "chat message"

// SaveRequest is the body of POST /api/chat/save.
type SaveRequest struct {
	Message  string  `json:"message" validate:"required,min=1,max=5000" example:"When does the next bus to campus leave?"`
	Response *string `json:"response,omitempty" validate:"omitempty,max=20000" example:"Line 12 leaves at 08:15."`
	Role     string  `json:"role,omitempty" validate:"omitempty,oneof=user assistant system" example:"user"`
}

// PurgeResponse reports how many messages a purge removed.
type PurgeResponse struct {
	Deleted int64 `json:"deleted" example:"12"`
}

// Service implements chat history operations for the authenticated account.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a chat service.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores a message owned by the request's account.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Message, error) {
	account, err := auth.RequireAccount(ctx)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = RoleUser
	}
	msg := &Message{
		ID:        uuid.New(),
		UserID:    account.ID,
		Role:      role,
		Message:   strings.TrimSpace(req.Message),
		Response:  req.Response,
		Timestamp: s.now().UTC().Truncate(time.Microsecond),
	}
	if msg.Message == "" {
		return nil, apperror.NewValidationError("message is required", nil)
	}
	return s.store.Create(ctx, msg)
}

// History returns one page of the request account's messages, newest first.
func (s *Service) History(ctx context.Context, limit, offset int) (*Page, error) {
	account, err := auth.RequireAccount(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > MaxLimit {
		return nil, apperror.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", MaxLimit), nil)
	}
	if offset < 0 {
		return nil, apperror.NewValidationError("offset must be zero or greater", nil)
	}

	items, total, err := s.store.List(ctx, account.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Message{}
	}
	return &Page{Total: total, Limit: limit, Offset: offset, Items: items}, nil
}

// Get returns a single message owned by the request account.
func (s *Service) Get(ctx context.Context, rawID string) (*Message, error) {
	_, msg, err := auth.Authorize(ctx, resourceName, rawID, s.store.FindOwned)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete removes one message owned by the request account. Unknown, malformed and
// foreign ids all fail the same way.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	account, msg, err := auth.Authorize(ctx, resourceName, rawID, s.store.FindOwned)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, account.ID, msg.ID); err != nil {
		if apperror.IsNotFound(err) {
			return &auth.Denial{Reason: auth.DenialNotFoundOrForbidden, Resource: resourceName}
		}
		return err
	}
	return nil
}

// Purge deletes the request account's entire history.
func (s *Service) Purge(ctx context.Context) (*PurgeResponse, error) {
	account, err := auth.RequireAccount(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.store.DeleteAll(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "chat history purged", "account_id", account.ID.String(), "deleted", n)
	return &PurgeResponse{Deleted: n}, nil
}
