package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-api/internal/cache"
	"go-auth-api/internal/config"
	"go-auth-api/internal/handler"
	"go-auth-api/internal/middleware"
	"go-auth-api/internal/model"
	"go-auth-api/internal/router"
	"go-auth-api/internal/service"
)

// fakeUserStore stands in for the Postgres repository; it enforces the same
// case-insensitive uniqueness the storage layer does.
type fakeUserStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[string]model.User
	creates int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]model.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, username string, passwordHash string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creates++
	key := strings.ToLower(strings.TrimSpace(username))
	if _, exists := s.users[key]; exists {
		return model.User{}, model.ErrUserAlreadyExists
	}

	s.nextID++
	user := model.User{ID: s.nextID, Username: strings.TrimSpace(username), PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	s.users[key] = user
	return user, nil
}

func (s *fakeUserStore) FindByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) counts() (users int, creates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), s.creates
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Message     string `json:"message"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T, store *fakeUserStore, quotas middleware.RouteQuotas) *httptest.Server {
	t.Helper()

	if quotas.RegisterPerMinute == 0 {
		quotas = middleware.RouteQuotas{RegisterPerMinute: 1000, LoginPerMinute: 1000, GlobalPerHour: 100000, GlobalPerDay: 100000}
	}

	cfg := &config.Config{
		ServerPort:        "8080",
		RequestTimeout:    30 * time.Second,
		JWTSecret:         "test-signing-secret",
		JWTAccessTTL:      15 * time.Minute,
		CORSOrigins:       []string{"*"},
		RegisterPerMinute: quotas.RegisterPerMinute,
		LoginPerMinute:    quotas.LoginPerMinute,
		GlobalPerHour:     quotas.GlobalPerHour,
		GlobalPerDay:      quotas.GlobalPerDay,
		ProtectedCacheTTL: 50 * time.Second,
	}

	tokens, err := service.NewTokenManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	require.NoError(t, err)

	authService := service.NewAuthService(store, service.NewPasswordHasher(bcrypt.MinCost), tokens)

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(tokens), router.Handlers{
		Auth: handler.NewAuthHandler(authService),
		Main: handler.NewMainHandler(cache.NewMemory(), cfg.ProtectedCacheTTL),
		Docs: handler.NewDocsHandler(""),
	})

	server := httptest.NewServer(appRouter)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, envelope) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var parsed envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

func TestRegister_Success(t *testing.T) {
	server := newTestServer(t, newFakeUserStore(), middleware.RouteQuotas{})

	resp, parsed := postJSON(t, server.URL+"/auth/register", map[string]string{
		"username": "testuser",
		"password": "password123",
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, parsed.Success)
	assert.Equal(t, "User registered successfully.", parsed.Data.Message)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	store := newFakeUserStore()
	server := newTestServer(t, store, middleware.RouteQuotas{})

	resp, _ := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "testuser", "password": "password123"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, parsed := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "testuser", "password": "newpassword"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, parsed.Success)
	assert.Equal(t, "ALREADY_EXISTS", parsed.Error.Code)

	users, _ := store.counts()
	assert.Equal(t, 1, users)
}

func TestRegister_InvalidInput(t *testing.T) {
	server := newTestServer(t, newFakeUserStore(), middleware.RouteQuotas{})

	for _, payload := range []map[string]string{
		{"username": "", "password": "password123"},
		{"username": "testuser", "password": ""},
		{},
	} {
		resp, parsed := postJSON(t, server.URL+"/auth/register", payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "BAD_REQUEST", parsed.Error.Code)
	}
}

func TestRegister_MalformedJSON(t *testing.T) {
	server := newTestServer(t, newFakeUserStore(), middleware.RouteQuotas{})

	resp, err := http.Post(server.URL+"/auth/register", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_Success(t *testing.T) {
	server := newTestServer(t, newFakeUserStore(), middleware.RouteQuotas{})

	resp, _ := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "testuser", "password": "password123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, parsed := postJSON(t, server.URL+"/auth/login", map[string]string{"username": "testuser", "password": "password123"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, parsed.Success)
	assert.NotEmpty(t, parsed.Data.AccessToken)
}

func TestLogin_FailuresShareOneResponseShape(t *testing.T) {
	server := newTestServer(t, newFakeUserStore(), middleware.RouteQuotas{})

	resp, _ := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "testuser", "password": "password123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	wrongResp, wrongParsed := postJSON(t, server.URL+"/auth/login", map[string]string{"username": "testuser", "password": "wrong"})
	unknownResp, unknownParsed := postJSON(t, server.URL+"/auth/login", map[string]string{"username": "nonexistent", "password": "password123"})

	assert.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownResp.StatusCode)
	assert.Equal(t, wrongParsed.Error.Code, unknownParsed.Error.Code)
	assert.Equal(t, wrongParsed.Error.Message, unknownParsed.Error.Message)
}

func TestRegister_RateLimited(t *testing.T) {
	store := newFakeUserStore()
	server := newTestServer(t, store, middleware.RouteQuotas{RegisterPerMinute: 5, LoginPerMinute: 10, GlobalPerHour: 1000, GlobalPerDay: 1000})

	for i := 0; i < 5; i++ {
		resp, _ := postJSON(t, server.URL+"/auth/register", map[string]string{
			"username": "user" + string(rune('a'+i)),
			"password": "password123",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "request %d", i+1)
	}

	// The 6th request carries a fresh username but must be rejected before
	// the store is touched.
	resp, parsed := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "userz", "password": "password123"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", parsed.Error.Code)

	users, creates := store.counts()
	assert.Equal(t, 5, users)
	assert.Equal(t, 5, creates)
}
