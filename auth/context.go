package auth

import (
	"context"

	"github.com/google/uuid"
)

// identityKey is unexported so only this package can store an Identity in a context.
type identityKey struct{}

// Identity is the per-request authentication result attached by the middleware.
// The zero value means "no identity".
type Identity struct {
	account *Account
}

// Account returns the resolved account, if any.
func (i Identity) Account() (*Account, bool) {
	return i.account, i.account != nil
}

// AccountID returns the resolved account's identifier, if any.
func (i Identity) AccountID() (uuid.UUID, bool) {
	if i.account == nil {
		return uuid.Nil, false
	}
	return i.account.ID, true
}

// Authenticated reports whether an account was resolved for the request.
func (i Identity) Authenticated() bool {
	return i.account != nil
}

// WithIdentity returns a copy of ctx carrying account as its identity. A nil
// account stores the empty identity.
func WithIdentity(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{account: account})
}

// IdentityFromContext returns the identity attached to ctx and whether one was
// attached at all. Requests that never passed through the middleware report false.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireAccount returns the authenticated account or an unauthenticated Denial.
func RequireAccount(ctx context.Context) (*Account, error) {
	id, _ := IdentityFromContext(ctx)
	account, ok := id.Account()
	if !ok {
		return nil, &Denial{Reason: DenialUnauthenticated}
	}
	return account, nil
}
