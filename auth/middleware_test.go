package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type middlewareFixture struct {
	clock    *testClock
	store    *fakeStore
	tokens   *TokenService
	auth     *Authenticator
	mu       sync.Mutex
	outcomes []string
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	f := &middlewareFixture{clock: newTestClock(), store: newFakeStore()}
	f.tokens = newTestTokens(t, f.clock)
	f.auth = NewAuthenticator(f.tokens, NewResolver(f.store, 50*time.Millisecond), DefaultPathPolicy(), discardLogger(),
		WithOutcomeObserver(func(o string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.outcomes = append(f.outcomes, o)
		}))
	return f
}

func (f *middlewareFixture) lastOutcome() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outcomes) == 0 {
		return ""
	}
	return f.outcomes[len(f.outcomes)-1]
}

// serve runs one request through the middleware and returns the identity the handler saw.
func (f *middlewareFixture) serve(t *testing.T, path, authorization string) (Identity, *httptest.ResponseRecorder) {
	t.Helper()
	var (
		seen   Identity
		called bool
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		var ok bool
		seen, ok = IdentityFromContext(r.Context())
		assert.True(t, ok, "identity context must always be attached")
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.auth.Middleware(next).ServeHTTP(rec, req)

	require.True(t, called, "middleware must always dispatch")
	assert.Equal(t, http.StatusTeapot, rec.Code, "middleware must never write its own response")
	return seen, rec
}

func (f *middlewareFixture) accessToken(t *testing.T, subject string) string {
	t.Helper()
	token, _, err := f.tokens.IssueAccess(subject)
	require.NoError(t, err)
	return token
}

func TestAuthenticator_ResolvesValidToken(t *testing.T) {
	f := newMiddlewareFixture(t)
	alice := f.store.add(&Account{Username: "alice", IsActive: true})

	id, _ := f.serve(t, "/api/chat/history", "Bearer "+f.accessToken(t, alice.ID.String()))

	require.True(t, id.Authenticated())
	acc, _ := id.Account()
	assert.Equal(t, "alice", acc.Username)
	accID, ok := id.AccountID()
	assert.True(t, ok)
	assert.Equal(t, alice.ID, accID)
	assert.Equal(t, OutcomeResolved, f.lastOutcome())
}

func TestAuthenticator_PublicPathSkipsVerification(t *testing.T) {
	f := newMiddlewareFixture(t)
	alice := f.store.add(&Account{Username: "alice", IsActive: true})

	id, _ := f.serve(t, "/api/auth/login", "Bearer "+f.accessToken(t, alice.ID.String()))

	assert.False(t, id.Authenticated(), "public paths bypass, even with a valid token")
	assert.Zero(t, f.store.lookupCount())
	assert.Equal(t, OutcomePublic, f.lastOutcome())
}

func TestAuthenticator_FailOpenCases(t *testing.T) {
	f := newMiddlewareFixture(t)
	alice := f.store.add(&Account{Username: "alice", IsActive: true})
	disabled := f.store.add(&Account{Username: "dave", IsActive: false})

	expired, _, err := f.tokens.Issue(alice.ID.String(), KindAccess, 0)
	require.NoError(t, err)
	refresh, _, err := f.tokens.IssueRefresh(alice.ID.String())
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		outcome       string
	}{
		{"no header", "", OutcomeNoCredentials},
		{"wrong scheme", "Basic YWxpY2U6U2VjcmV0MQ==", OutcomeNoCredentials},
		{"scheme only", "Bearer ", OutcomeNoCredentials},
		{"garbage token", "Bearer not.a.jwt", OutcomeInvalidToken},
		{"expired token", "Bearer " + expired, OutcomeInvalidToken},
		{"refresh token as bearer", "Bearer " + refresh, OutcomeInvalidToken},
		{"subject not an id", "Bearer " + f.accessToken(t, "alice"), OutcomeInvalidSubject},
		{"unknown account", "Bearer " + f.accessToken(t, uuid.NewString()), OutcomeUnresolved},
		{"disabled account", "Bearer " + f.accessToken(t, disabled.ID.String()), OutcomeUnresolved},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, rec := f.serve(t, "/api/chat/history", tc.authorization)
			assert.False(t, id.Authenticated())
			_, ok := id.AccountID()
			assert.False(t, ok)
			assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, tc.outcome, f.lastOutcome())
		})
	}
}

func TestAuthenticator_SchemeIsCaseInsensitive(t *testing.T) {
	f := newMiddlewareFixture(t)
	alice := f.store.add(&Account{Username: "alice", IsActive: true})

	id, _ := f.serve(t, "/api/auth/me", "bearer "+f.accessToken(t, alice.ID.String()))
	assert.True(t, id.Authenticated())
}

func TestAuthenticator_StoreFailureFailsOpen(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.store.findByID = func(context.Context, uuid.UUID) (*Account, error) {
		return nil, errors.New("database is down")
	}

	id, _ := f.serve(t, "/api/chat/history", "Bearer "+f.accessToken(t, uuid.NewString()))
	assert.False(t, id.Authenticated())
	assert.Equal(t, OutcomeError, f.lastOutcome())
}

func TestAuthenticator_StoreTimeoutFailsOpen(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.store.findByID = func(ctx context.Context, _ uuid.UUID) (*Account, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	id, _ := f.serve(t, "/api/chat/history", "Bearer "+f.accessToken(t, uuid.NewString()))
	assert.False(t, id.Authenticated())
	assert.Equal(t, OutcomeError, f.lastOutcome())
}

func TestAuthenticator_StorePanicFailsOpen(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.store.findByID = func(context.Context, uuid.UUID) (*Account, error) {
		panic("driver bug")
	}

	id, _ := f.serve(t, "/api/chat/history", "Bearer "+f.accessToken(t, uuid.NewString()))
	assert.False(t, id.Authenticated())
	assert.Equal(t, OutcomeError, f.lastOutcome())
}

func TestAuthenticator_DisabledAfterIssueStopsResolving(t *testing.T) {
	f := newMiddlewareFixture(t)
	alice := f.store.add(&Account{Username: "alice", IsActive: true})
	token := f.accessToken(t, alice.ID.String())

	id, _ := f.serve(t, "/api/auth/me", "Bearer "+token)
	require.True(t, id.Authenticated())

	f.store.mu.Lock()
	f.store.accounts[alice.ID].IsActive = false
	f.store.mu.Unlock()

	id, _ = f.serve(t, "/api/auth/me", "Bearer "+token)
	assert.False(t, id.Authenticated())
}

func TestAuthenticator_ConcurrentRequestsAreIndependent(t *testing.T) {
	f := newMiddlewareFixture(t)
	alice := f.store.add(&Account{Username: "alice", IsActive: true})
	bob := f.store.add(&Account{Username: "bob", IsActive: true})
	tokens := map[string]string{
		"alice": f.accessToken(t, alice.ID.String()),
		"bob":   f.accessToken(t, bob.ID.String()),
		"":      "",
	}

	handler := f.auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		name := ""
		if acc, ok := id.Account(); ok {
			name = acc.Username
		}
		_, _ = w.Write([]byte(name))
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for want, token := range tokens {
			wg.Add(1)
			go func(want, token string) {
				defer wg.Done()
				req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
				if token != "" {
					req.Header.Set("Authorization", "Bearer "+token)
				}
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				assert.Equal(t, want, rec.Body.String())
			}(want, token)
		}
	}
	wg.Wait()
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Bearerabc", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		token, ok := bearerToken(tc.header)
		assert.Equal(t, tc.ok, ok, "header %q", tc.header)
		assert.Equal(t, tc.token, token, "header %q", tc.header)
	}
}
