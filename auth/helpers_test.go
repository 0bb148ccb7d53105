package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/config"
)

const testSecret = "test-secret-0123456789abcdef"

// testClock is a settable clock shared with the token service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:            testSecret,
		JWTAlgorithm:         "HS256",
		AccessTokenDuration:  time.Hour,
		RefreshTokenDuration: 7 * 24 * time.Hour,
		LookupTimeout:        time.Second,
	}
}

func newTestTokens(t *testing.T, clk *testClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testAuthConfig(), WithClock(clk.Now))
	require.NoError(t, err)
	return svc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory AccountStore whose lookups can be overridden per test.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	findByID func(ctx context.Context, id uuid.UUID) (*Account, error)
	lookups  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[uuid.UUID]*Account)}
}

func (f *fakeStore) add(a *Account) *Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.accounts[a.ID] = a
	return a
}

func (f *fakeStore) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	f.mu.Lock()
	f.lookups++
	override := f.findByID
	f.mu.Unlock()
	if override != nil {
		return override(ctx, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, apperror.NewNotFoundError("account not found", nil)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) FindByLogin(_ context.Context, login string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == login {
			cp := *a
			return &cp, nil
		}
	}
	for _, a := range f.accounts {
		if a.Email == strings.ToLower(login) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFoundError("account not found", nil)
}

func (f *fakeStore) Create(_ context.Context, a *Account) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Username == a.Username {
			return nil, apperror.NewConflictError("username already exists", nil)
		}
		if existing.Email == a.Email {
			return nil, apperror.NewConflictError("email already exists", nil)
		}
	}
	cp := *a
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	f.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// newTestHasher uses the cheapest bcrypt cost to keep tests fast.
func newTestHasher() *PasswordHasher {
	return NewPasswordHasher(bcrypt.MinCost)
}
