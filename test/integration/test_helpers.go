//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-api/internal/cache"
	"go-auth-api/internal/config"
	"go-auth-api/internal/database"
	"go-auth-api/internal/handler"
	"go-auth-api/internal/middleware"
	"go-auth-api/internal/repository"
	"go-auth-api/internal/router"
	"go-auth-api/internal/service"
)

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

// newIntegrationServer wires the full stack against a real Postgres. Tests
// are skipped unless TEST_DATABASE_URL points at a disposable database.
func newIntegrationServer(t *testing.T) (*httptest.Server, *repository.UserRepository) {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	}

	ctx := context.Background()
	db, err := database.New(ctx, databaseURL, 4, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE users RESTART IDENTITY`)
	require.NoError(t, err)

	cfg := &config.Config{
		ServerPort:        "8080",
		RequestTimeout:    30 * time.Second,
		DatabaseURL:       databaseURL,
		JWTSecret:         "integration-test-secret",
		JWTAccessTTL:      15 * time.Minute,
		CORSOrigins:       []string{"*"},
		RegisterPerMinute: 1000,
		LoginPerMinute:    1000,
		GlobalPerHour:     100000,
		GlobalPerDay:      100000,
		ProtectedCacheTTL: 50 * time.Second,
	}

	userRepo := repository.NewUserRepository(db.Pool)
	tokens, err := service.NewTokenManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	require.NoError(t, err)

	authService := service.NewAuthService(userRepo, service.NewPasswordHasher(bcrypt.MinCost), tokens)

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(tokens), router.Handlers{
		Auth: handler.NewAuthHandler(authService),
		Main: handler.NewMainHandler(cache.NewMemory(), cfg.ProtectedCacheTTL),
		Docs: handler.NewDocsHandler(""),
	})

	server := httptest.NewServer(appRouter)
	t.Cleanup(server.Close)
	return server, userRepo
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

func getWithToken(t *testing.T, url string, token string) (*http.Response, envelope) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var parsed envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}
