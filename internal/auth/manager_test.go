package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer is a fake authorization endpoint. It counts refresh calls and
// can be switched to fail.
type tokenServer struct {
	*httptest.Server
	calls     atomic.Int64
	expiresIn atomic.Int64
	fail      atomic.Bool
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.expiresIn.Store(3600)
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		if ts.fail.Load() {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"token_type":   "bearer",
			"expires_in":   ts.expiresIn.Load(),
		})
	}))
	t.Cleanup(ts.Server.Close)
	return ts
}

func newTestManager(t *testing.T, server *tokenServer) *Manager {
	t.Helper()
	m := NewManager("app-key", "app-secret", "refresh-token", log.New(testWriter{t}, "", 0))
	m.SetTokenURL(server.URL)
	return m
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestManager_EnsureFresh_NoTokenTriggersOneRefresh(t *testing.T) {
	server := newTokenServer(t)
	m := newTestManager(t, server)

	require.NoError(t, m.EnsureFresh(context.Background()))
	assert.Equal(t, int64(1), server.calls.Load())

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-access-token", token)
}

func TestManager_EnsureFresh_ValidTokenIsNoOp(t *testing.T) {
	server := newTokenServer(t)
	m := newTestManager(t, server)

	require.NoError(t, m.EnsureFresh(context.Background()))
	require.Equal(t, int64(1), server.calls.Load())

	// Expiry is an hour out, well past the buffer window.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.EnsureFresh(context.Background()))
	}
	assert.Equal(t, int64(1), server.calls.Load(), "valid token must not trigger refreshes")
}

func TestManager_EnsureFresh_BufferWindowCountsAsExpired(t *testing.T) {
	server := newTokenServer(t)
	// 5 minutes is inside the 10 minute buffer, so the token is stale the
	// moment it is minted.
	server.expiresIn.Store(300)
	m := newTestManager(t, server)

	require.NoError(t, m.EnsureFresh(context.Background()))
	require.Equal(t, int64(1), server.calls.Load())

	require.NoError(t, m.EnsureFresh(context.Background()))
	assert.Equal(t, int64(2), server.calls.Load(), "token inside the buffer window must refresh again")
}

func TestManager_RefreshFailure_PreservesExistingToken(t *testing.T) {
	server := newTokenServer(t)
	server.expiresIn.Store(300) // stale immediately
	m := newTestManager(t, server)

	require.NoError(t, m.EnsureFresh(context.Background()))
	expiryBefore, held := m.Expiry()
	require.True(t, held)

	server.fail.Store(true)
	err := m.EnsureFresh(context.Background())
	require.Error(t, err)

	var refreshErr *RefreshError
	assert.True(t, errors.As(err, &refreshErr), "expected RefreshError, got %T", err)

	expiryAfter, held := m.Expiry()
	require.True(t, held, "failed refresh must not clear the cached token")
	assert.Equal(t, expiryBefore, expiryAfter)
}

func TestManager_ConcurrentEnsureFresh_SingleRefresh(t *testing.T) {
	server := newTokenServer(t)
	m := newTestManager(t, server)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.EnsureFresh(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), server.calls.Load(), "concurrent callers must share one refresh")

	_, held := m.Expiry()
	assert.True(t, held)
}

func TestManager_Unconfigured(t *testing.T) {
	m := NewManager("", "", "", nil)
	assert.False(t, m.Configured())

	err := m.EnsureFresh(context.Background())
	require.Error(t, err)

	var confErr *ConfigurationError
	assert.True(t, errors.As(err, &confErr))

	_, err = m.Token(context.Background())
	assert.Error(t, err)
}

func TestManager_TokenExpiryFromServer(t *testing.T) {
	server := newTokenServer(t)
	m := newTestManager(t, server)

	before := time.Now()
	require.NoError(t, m.EnsureFresh(context.Background()))

	expiry, held := m.Expiry()
	require.True(t, held)
	assert.WithinDuration(t, before.Add(time.Hour), expiry, 30*time.Second)
}
