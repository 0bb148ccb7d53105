// Package auth, as part of the authentication module.
// This file, `middleware.go`, defines the middleware that attaches a request identity.
// Unlike a guard, it never answers a request itself: every request is forwarded, with
// either a resolved account or the empty identity in its context. Handlers that need an
// account ask for it with RequireAccount, or with Authorize for owned resources.
// In Nest.js terms this is closer to a global interceptor that populates `req.user`
// than to an AuthGuard.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Outcomes of one authentication attempt, reported to the outcome observer.
const (
	OutcomePublic         = "public"
	OutcomeNoCredentials  = "no_credentials"
	OutcomeInvalidToken   = "invalid_token"
	OutcomeInvalidSubject = "invalid_subject"
	OutcomeUnresolved     = "unresolved"
	OutcomeResolved       = "resolved"
	OutcomeError          = "error"
)

const bearerScheme = "bearer "

// Authenticator is the authentication middleware. It never rejects a request:
// it attaches either a resolved Identity or the empty one and always calls the
// next handler. Handlers that need an account call RequireAccount or Authorize.
type Authenticator struct {
	tokens   *TokenService
	resolver *Resolver
	paths    *PathPolicy
	logger   *slog.Logger
	observe  func(outcome string)
}

// AuthenticatorOption customises an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithOutcomeObserver registers fn to be called once per request with the outcome.
func WithOutcomeObserver(fn func(outcome string)) AuthenticatorOption {
	return func(a *Authenticator) { a.observe = fn }
}

// NewAuthenticator wires the token service, resolver and path policy together.
func NewAuthenticator(tokens *TokenService, resolver *Resolver, paths *PathPolicy, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if paths == nil {
		paths = DefaultPathPolicy()
	}
	a := &Authenticator{
		tokens:   tokens,
		resolver: resolver,
		paths:    paths,
		logger:   logger,
		observe:  func(string) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Middleware conforms to the `func(next http.Handler) http.Handler` shape chi expects.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, outcome := a.authenticate(r)
		a.observe(outcome)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), account)))
	})
}

// authenticate runs classification, extraction, verification and resolution in
// that order and stops at the first step that yields no identity.
func (a *Authenticator) authenticate(r *http.Request) (account *Account, outcome string) {
	// A failing store must not take the request down with it.
	defer func() {
		if p := recover(); p != nil {
			a.logger.ErrorContext(r.Context(), "identity resolution panicked", "path", r.URL.Path, "panic", fmt.Sprint(p))
			account, outcome = nil, OutcomeError
		}
	}()

	if a.paths.IsPublic(r.URL.Path) {
		return nil, OutcomePublic
	}

	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, OutcomeNoCredentials
	}

	claims, err := a.tokens.VerifyKind(raw, KindAccess)
	if err != nil {
		var tokenErr *TokenError
		reason := ReasonMalformed
		if errors.As(err, &tokenErr) {
			reason = tokenErr.Reason
		}
		a.logger.DebugContext(r.Context(), "bearer token rejected", "path", r.URL.Path, "reason", reason)
		return nil, OutcomeInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		a.logger.DebugContext(r.Context(), "token subject is not an account id", "path", r.URL.Path)
		return nil, OutcomeInvalidSubject
	}

	account, err = a.resolver.ResolveID(r.Context(), id)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "account lookup failed, continuing without identity",
			"path", r.URL.Path, "account_id", id.String(), "error", err)
		return nil, OutcomeError
	}
	if account == nil {
		a.logger.DebugContext(r.Context(), "token subject did not resolve to an active account", "account_id", id.String())
		return nil, OutcomeUnresolved
	}
	return account, OutcomeResolved
}

// bearerToken extracts the credential from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	if len(header) <= len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", false
	}
	return token, true
}
