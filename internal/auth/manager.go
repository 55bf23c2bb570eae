package auth

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"dtfquotes-go/internal/metrics"

	"golang.org/x/oauth2"
)

// DefaultTokenURL is the Dropbox OAuth2 token endpoint.
const DefaultTokenURL = "https://api.dropboxapi.com/oauth2/token"

// refreshBuffer is subtracted from the token expiry when deciding whether a
// refresh is due. It absorbs clock skew and in-flight request latency so a
// token never expires mid-operation.
const refreshBuffer = 10 * time.Minute

// Manager owns the process-wide access token and the refresh protocol
// against the authorization endpoint. The token/expiry pair is the only
// shared mutable state in the system, so access goes through a mutex; when
// several callers find the token stale at once, only the first performs the
// exchange and the rest observe the refreshed token.
type Manager struct {
	config       *oauth2.Config
	refreshToken string
	client       *http.Client
	logger       *log.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewManager creates a Manager for the given credential set. Empty
// credentials are allowed; Token and EnsureFresh will return a
// ConfigurationError until a complete set is provided.
func NewManager(appKey, appSecret, refreshToken string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		config: &oauth2.Config{
			ClientID:     appKey,
			ClientSecret: appSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: DefaultTokenURL},
		},
		refreshToken: refreshToken,
		client:       http.DefaultClient,
		logger:       logger,
	}
}

// SetClient sets the HTTP client used for the token exchange.
func (m *Manager) SetClient(client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}
	m.client = client
}

// SetTokenURL overrides the authorization endpoint.
func (m *Manager) SetTokenURL(url string) {
	m.config.Endpoint.TokenURL = url
}

// Configured reports whether a complete credential set was provided.
func (m *Manager) Configured() bool {
	return m.config.ClientID != "" && m.config.ClientSecret != "" && m.refreshToken != ""
}

// EnsureFresh refreshes the access token if it is unset or inside the
// buffer window before expiry. It is a no-op when the current token is
// still comfortably valid.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	if !m.Configured() {
		return &ConfigurationError{Reason: "dropbox credentials not set"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.needsRefreshLocked(time.Now()) {
		return nil
	}
	return m.refreshLocked(ctx)
}

// Token returns an access token valid for at least the immediate following
// operation, refreshing first when needed.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if err := m.EnsureFresh(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.AccessToken, nil
}

// Expiry returns the current token expiry and whether a token is held.
func (m *Manager) Expiry() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return time.Time{}, false
	}
	return m.token.Expiry, true
}

// needsRefreshLocked reports whether the token is unset or past
// expiry − refreshBuffer. Caller must hold m.mu.
func (m *Manager) needsRefreshLocked(now time.Time) bool {
	if m.token == nil || m.token.AccessToken == "" {
		return true
	}
	return !now.Before(m.token.Expiry.Add(-refreshBuffer))
}

// refreshLocked exchanges the stored refresh token for a new access token.
// On failure the existing token is left untouched, so a stale-but-present
// token remains usable until its own expiry. Caller must hold m.mu.
func (m *Manager) refreshLocked(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	tokenSource := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken})

	newToken, err := tokenSource.Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		m.logger.Printf("auth: token refresh failed: %v", err)
		return &RefreshError{Err: err}
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	m.token = newToken
	m.logger.Printf("auth: access token refreshed, expires at %s", newToken.Expiry.Format(time.RFC3339))
	return nil
}
