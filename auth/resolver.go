package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/transportuni/chatbot-api/apperror"
)

// Resolver turns a verified token subject into an active Account.
type Resolver struct {
	store   AccountFinder
	timeout time.Duration
}

// NewResolver returns a Resolver that bounds every lookup by timeout (no bound when timeout <= 0).
func NewResolver(store AccountFinder, timeout time.Duration) *Resolver {
	return &Resolver{store: store, timeout: timeout}
}

// Resolve returns the active account named by subject.
// It returns (nil, nil) when subject is not a valid identifier, when no account
// has that identifier, or when the account is disabled. A non-nil error means
// the store itself failed or the lookup timed out.
func (r *Resolver) Resolve(ctx context.Context, subject string) (*Account, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, nil
	}
	return r.ResolveID(ctx, id)
}

// ResolveID is Resolve for an already parsed identifier.
func (r *Resolver) ResolveID(ctx context.Context, id uuid.UUID) (*Account, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	account, err := r.store.FindByID(ctx, id)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if account == nil || !account.IsActive {
		return nil, nil
	}
	return account, nil
}
