package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/transportuni/chatbot-api/auth"
	"github.com/transportuni/chatbot-api/chat"
	"github.com/transportuni/chatbot-api/config"
	"github.com/transportuni/chatbot-api/dashboard"
	"github.com/transportuni/chatbot-api/memstore"
	"github.com/transportuni/chatbot-api/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Database: &config.DatabaseConfig{Driver: config.StoreDriverMemory},
		Auth: &config.AuthConfig{
			JWTSecret:            "integration-secret-0123456789",
			JWTAlgorithm:         "HS256",
			AccessTokenDuration:  time.Hour,
			RefreshTokenDuration: 7 * 24 * time.Hour,
			LookupTimeout:        time.Second,
			BcryptCost:           bcrypt.MinCost,
		},
		RateLimit: &config.RateLimitConfig{Limit: 3, Window: time.Minute},
		Server:    &config.ServerConfig{Port: "0", AllowedOrigins: []string{"*"}},
		Log:       &config.LogConfig{Level: "info", Format: "text"},
	}
}

type testApp struct {
	store   *memstore.Store
	clock   *fakeClock
	metrics *metrics.Metrics
	handler http.Handler
}

type appOption func(*Deps)

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()
	store := memstore.New()
	clock := &fakeClock{now: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)}
	m := metrics.New()
	deps := Deps{
		Config:   testConfig(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Accounts: store,
		Admin:    store,
		Chat:     store.Chat(),
		Stats:    store,
		Metrics:  m,
		Now:      clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv, err := New(deps)
	require.NoError(t, err)
	return &testApp{store: store, clock: clock, metrics: m, handler: srv.Handler()}
}

func (a *testApp) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) register(t *testing.T, username, password string) auth.RegisterResponse {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":%q,"password":%q}`, username, username+"@x.com", password)
	rec := a.do(t, http.MethodPost, "/api/auth/register", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp auth.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (a *testApp) loginForm(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := a.loginForm(t, username, password)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp auth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func (a *testApp) save(t *testing.T, token, message string) chat.Message {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/chat/save", fmt.Sprintf(`{"message":%q}`, message), token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	return msg
}

func (a *testApp) history(t *testing.T, token, query string) chat.Page {
	t.Helper()
	rec := a.do(t, http.MethodGet, "/api/chat/history"+query, "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page chat.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	return page
}

func (a *testApp) promote(t *testing.T, username string) {
	t.Helper()
	account, err := a.store.FindByUsername(context.Background(), username)
	require.NoError(t, err)
	admin := true
	_, err = a.store.UpdateFlags(context.Background(), account.ID, nil, &admin)
	require.NoError(t, err)
}

func assertNotAuthenticated(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"not authenticated"}`, rec.Body.String())
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestRegisterLoginAndAccessProtectedResource(t *testing.T) {
	app := newTestApp(t)

	reg := app.register(t, "alice", "Secret1")
	assert.Equal(t, "alice", reg.Account.Username)

	token := app.login(t, "alice", "Secret1")
	rec := app.do(t, http.MethodGet, "/api/auth/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var me auth.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, reg.Account.ID, me.ID)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLoginJSONAndEmailLogin(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "Secret1")

	rec := app.do(t, http.MethodPost, "/api/auth/login/json", `{"username":"alice@x.com","password":"Secret1"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.loginForm(t, "alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid username or password"}`, rec.Body.String())
}

func TestExpiredTokenIsTreatedAsAnonymous(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "Secret1")
	token := app.login(t, "alice", "Secret1")

	app.clock.Advance(time.Hour)

	assertNotAuthenticated(t, app.do(t, http.MethodGet, "/api/auth/me", "", token))
	assertNotAuthenticated(t, app.do(t, http.MethodGet, "/api/chat/history", "", token))
	assert.Equal(t, 2.0, testutil.ToFloat64(app.metrics.AuthOutcomes.WithLabelValues(auth.OutcomeInvalidToken)))
}

func TestMissingAndMalformedCredentialsGetUniformResponse(t *testing.T) {
	app := newTestApp(t)

	for name, header := range map[string]string{
		"none":         "",
		"wrong scheme": "Basic YWxpY2U6U2VjcmV0MQ==",
		"garbage":      "Bearer not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			app.handler.ServeHTTP(rec, req)
			assertNotAuthenticated(t, rec)
		})
	}
}

func TestRefreshTokenIssuesNewAccessToken(t *testing.T) {
	app := newTestApp(t)
	reg := app.register(t, "alice", "Secret1")

	rec := app.do(t, http.MethodPost, "/api/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, reg.RefreshToken), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp auth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/api/auth/me", "", resp.AccessToken).Code)

	// A refresh token is not accepted as a bearer credential.
	assertNotAuthenticated(t, app.do(t, http.MethodGet, "/api/auth/me", "", reg.RefreshToken))
}

func TestOwnershipIsolation(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "Secret1")
	app.register(t, "bob", "Secret2")
	alice := app.login(t, "alice", "Secret1")
	bob := app.login(t, "bob", "Secret2")

	aliceMsg := app.save(t, alice, "When does the campus shuttle leave?")
	app.save(t, bob, "Is the library open on Sunday?")

	rec := app.do(t, http.MethodDelete, "/api/chat/history/"+aliceMsg.ID.String(), "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"chat message not found"}`, rec.Body.String())

	rec = app.do(t, http.MethodGet, "/api/chat/history/"+aliceMsg.ID.String(), "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed and unknown ids look exactly like a foreign one.
	for _, id := range []string{"not-a-uuid", "6f1c2a9e-0000-4000-8000-000000000000"} {
		rec := app.do(t, http.MethodDelete, "/api/chat/history/"+id, "", bob)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"chat message not found"}`, rec.Body.String())
	}

	page := app.history(t, alice, "")
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, aliceMsg.ID, page.Items[0].ID)

	rec = app.do(t, http.MethodDelete, "/api/chat/history/"+aliceMsg.ID.String(), "", alice)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(0), app.history(t, alice, "").Total)
	assert.Equal(t, int64(1), app.history(t, bob, "").Total)
}

func TestHistoryPagination(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "Secret1")
	token := app.login(t, "alice", "Secret1")

	for i := 1; i <= 10; i++ {
		app.save(t, token, fmt.Sprintf("question %d", i))
		app.clock.Advance(time.Second)
	}

	page := app.history(t, token, "?limit=5&offset=5")
	assert.Equal(t, int64(10), page.Total)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, 5, page.Offset)
	require.Len(t, page.Items, 5)
	for i, msg := range page.Items {
		assert.Equal(t, fmt.Sprintf("question %d", 5-i), msg.Message)
	}
	for i := 1; i < len(page.Items); i++ {
		assert.True(t, page.Items[i-1].Timestamp.After(page.Items[i].Timestamp))
	}

	for _, q := range []string{"?limit=0", "?limit=201", "?offset=-1", "?limit=abc"} {
		rec := app.do(t, http.MethodGet, "/api/chat/history"+q, "", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestPurgeHistory(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "Secret1")
	token := app.login(t, "alice", "Secret1")
	app.save(t, token, "one")
	app.save(t, token, "two")

	rec := app.do(t, http.MethodDelete, "/api/chat/history", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())
	assert.Equal(t, int64(0), app.history(t, token, "").Total)
}

func TestDashboardRequiresAdmin(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "Secret1")
	app.register(t, "bob", "Secret2")
	alice := app.login(t, "alice", "Secret1")
	bob := app.login(t, "bob", "Secret2")
	app.save(t, alice, "bus times")
	app.save(t, bob, "bus times")
	app.save(t, bob, "parking")

	assertNotAuthenticated(t, app.do(t, http.MethodGet, "/api/dashboard", "", ""))

	rec := app.do(t, http.MethodGet, "/api/dashboard", "", bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	app.promote(t, "alice")
	rec = app.do(t, http.MethodGet, "/api/dashboard", "", alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stats dashboard.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(3), stats.TotalQuestions)
	require.Len(t, stats.FrequentQuestions, 2)
	assert.Equal(t, dashboard.FrequentQuestion{Question: "bus times", Count: 2}, stats.FrequentQuestions[0])

	revoked := false
	account, err := app.store.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	_, err = app.store.UpdateFlags(context.Background(), account.ID, nil, &revoked)
	require.NoError(t, err)
	rec = app.do(t, http.MethodGet, "/api/dashboard", "", alice)
	assert.Equal(t, http.StatusForbidden, rec.Code, "revocation applies on the next request")
}

func TestAdminDisablesAccount(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice", "Secret1")
	app.register(t, "bob", "Secret2")
	app.promote(t, "alice")
	alice := app.login(t, "alice", "Secret1")
	bob := app.login(t, "bob", "Secret2")

	rec := app.do(t, http.MethodPatch, "/api/users/alice/status", `{"is_admin":false}`, bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPatch, "/api/users/bob/status", `{}`, alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPatch, "/api/users/nobody/status", `{"is_active":false}`, alice)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPatch, "/api/users/bob/status", `{"is_active":false}`, alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated auth.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.False(t, updated.IsActive)

	// Bob's token is still unexpired but no longer resolves.
	assertNotAuthenticated(t, app.do(t, http.MethodGet, "/api/auth/me", "", bob))

	rec = app.loginForm(t, "bob", "Secret2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"account is inactive"}`, rec.Body.String())
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	app := newTestApp(t, func(d *Deps) { d.Redis = client })
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, app.loginForm(t, "ghost", "nope").Code)
	}
	rec := app.loginForm(t, "ghost", "nope")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.RateLimitRejectedTotal))

	// Refresh is not limited.
	rec = app.do(t, http.MethodPost, "/api/auth/refresh", `{"refresh_token":"x"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceEndpoints(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = app.do(t, http.MethodGet, "/api", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "University Chatbot API")

	rec = app.do(t, http.MethodGet, "/openapi.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/chat/history/{id}"`)

	rec = app.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatbot_auth_outcomes_total")

	rec = app.do(t, http.MethodGet, "/api/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"resource not found"}`, rec.Body.String())
}

func TestHealthReportsDatabaseFailure(t *testing.T) {
	app := newTestApp(t, func(d *Deps) {
		d.HealthCheck = func(context.Context) error { return errors.New("connection refused") }
	})
	rec := app.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestSPAFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))

	app := newTestApp(t, func(d *Deps) { d.Config.Server.FrontendDir = dir })

	rec := app.do(t, http.MethodGet, "/app.js", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = app.do(t, http.MethodGet, "/history/settings", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>app</html>", rec.Body.String())

	rec = app.do(t, http.MethodGet, "/api/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanicBecomesInternalError(t *testing.T) {
	h := recoverer(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestPanicAfterHeadersLeavesResponseAlone(t *testing.T) {
	h := recoverer(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"partial":`))
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"partial":`, rec.Body.String())
}
