//go:build integration

package integration

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-api/internal/model"
)

func TestRegisterLoginProtectedFlow(t *testing.T) {
	server, _ := newIntegrationServer(t)

	resp, parsed := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "testuser", "password": "password123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "User registered successfully.", parsed.Data.Message)

	resp, parsed = postJSON(t, server.URL+"/auth/login", map[string]string{"username": "testuser", "password": "password123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, parsed.Data.AccessToken)

	resp, parsed = getWithToken(t, server.URL+"/api/protected", parsed.Data.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello, user 1!", parsed.Data.Message)
}

func TestUniqueConstraintHoldsInDatabase(t *testing.T) {
	server, repo := newIntegrationServer(t)
	ctx := context.Background()

	resp, _ := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "testuser", "password": "password123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, parsed := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "testuser", "password": "other"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_EXISTS", parsed.Error.Code)

	// Case-only variants collide on the lower(username) index.
	resp, _ = postJSON(t, server.URL+"/auth/register", map[string]string{"username": "TestUser", "password": "other"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConcurrentRegistrationsSingleWinner(t *testing.T) {
	server, repo := newIntegrationServer(t)
	ctx := context.Background()

	// Concurrent inserts race on the unique index, not on an application
	// check; exactly one must win.
	const attempts = 8
	statuses := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _ := postJSON(t, server.URL+"/auth/register", map[string]string{"username": "raceuser", "password": "password123"})
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	created := 0
	for _, status := range statuses {
		if status == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusConflict, status)
		}
	}
	assert.Equal(t, 1, created)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRepositoryNotFound(t *testing.T) {
	_, repo := newIntegrationServer(t)

	_, err := repo.FindByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}
