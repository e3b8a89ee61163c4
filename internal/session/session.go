// Package session owns the stored ESI credential: loading it, refreshing it
// against the SSO token endpoint, and persisting every refresh atomically so
// a crash mid-refresh cannot corrupt the token file. The interactive
// authorization-code flow that mints the very first token lives outside this
// repository; without its output Acquire fails with ErrTokenUnavailable.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"eve-market-hand/internal/config"
	"eve-market-hand/internal/models"

	"github.com/go-resty/resty/v2"
)

// ErrTokenUnavailable means no stored credential exists; the out-of-band
// bootstrap flow must run first.
var ErrTokenUnavailable = errors.New("no stored ESI token: run the authorization flow first")

// TokenRefreshError wraps a failed upstream refresh call.
type TokenRefreshError struct {
	Err error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("ESI token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}

// refreshMargin renews tokens slightly before their recorded expiry so a
// token does not die mid-pagination.
const refreshMargin = 60 * time.Second

type Manager struct {
	client       *resty.Client
	tokenPath    string
	tokenURL     string
	clientID     string
	clientSecret string
	statusURL    string
	statusTTL    time.Duration

	mu              sync.Mutex
	cachedStatus    bool
	lastStatusCheck time.Time
}

func NewManager(cfg *config.Config) *Manager {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetHeader("User-Agent", cfg.ESIUserAgent)

	return &Manager{
		client:       client,
		tokenPath:    cfg.TokenFile,
		tokenURL:     cfg.ESITokenURL,
		clientID:     cfg.ESIClientID,
		clientSecret: cfg.ESIClientSecret,
		statusURL:    cfg.ESIBaseURL + "/latest/status/",
		statusTTL:    cfg.StatusCacheDuration,
	}
}

// Acquire returns a usable bearer token, refreshing first when the stored
// one is at or past expiry.
func (m *Manager) Acquire(ctx context.Context) (*models.Token, error) {
	token, err := m.loadToken()
	if err != nil {
		return nil, err
	}
	if token.Expired(refreshMargin) {
		log.Println("[Session] stored token expired, refreshing")
		return m.Refresh(ctx, token)
	}
	return token, nil
}

// Refresh exchanges the refresh token for a new access token and persists
// the result before returning it.
func (m *Manager) Refresh(ctx context.Context, token *models.Token) (*models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == nil || token.RefreshToken == "" {
		return nil, &TokenRefreshError{Err: errors.New("stored token has no refresh_token")}
	}

	var refreshed models.Token
	resp, err := m.client.R().
		SetContext(ctx).
		SetBasicAuth(m.clientID, m.clientSecret).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": token.RefreshToken,
		}).
		SetResult(&refreshed).
		Post(m.tokenURL)
	if err != nil {
		return nil, &TokenRefreshError{Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &TokenRefreshError{Err: fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode(), resp.String())}
	}
	if refreshed.AccessToken == "" {
		return nil, &TokenRefreshError{Err: errors.New("token endpoint returned no access_token")}
	}

	// SSO may omit a rotated refresh token; keep the old one then
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if refreshed.ExpiresIn > 0 {
		refreshed.ExpiresAt = time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second).Unix()
	}

	if err := m.saveToken(&refreshed); err != nil {
		return nil, fmt.Errorf("refreshed token could not be saved: %w", err)
	}
	log.Println("[Session] token refreshed and saved")
	return &refreshed, nil
}

func (m *Manager) loadToken() (*models.Token, error) {
	content, err := os.ReadFile(m.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrTokenUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token models.Token
	if err := json.Unmarshal(content, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token file is missing access_token field")
	}
	return &token, nil
}

// saveToken writes to a temp file in the same directory and renames it over
// the real one, so readers never observe a half-written token.
func (m *Manager) saveToken(token *models.Token) error {
	if err := os.MkdirAll(filepath.Dir(m.tokenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	content, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	tmp := m.tokenPath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write temp token file: %w", err)
	}
	if err := os.Rename(tmp, m.tokenPath); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// ProbeStatus reports whether the upstream API answers its status endpoint.
// Successful probes are cached for the configured duration so scheduled
// runs do not hammer the endpoint.
func (m *Manager) ProbeStatus(ctx context.Context) bool {
	return m.probe(ctx, false)
}

// ForceProbeStatus bypasses the probe cache; used after a 401-equivalent
// response where the cached verdict is suspect.
func (m *Manager) ForceProbeStatus(ctx context.Context) bool {
	return m.probe(ctx, true)
}

func (m *Manager) probe(ctx context.Context, force bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && time.Since(m.lastStatusCheck) < m.statusTTL && !m.lastStatusCheck.IsZero() {
		log.Println("[Session] using cached ESI status")
		return m.cachedStatus
	}

	resp, err := m.client.R().SetContext(ctx).Get(m.statusURL)
	if err != nil {
		log.Printf("[Session] status probe failed: %v (returning cached value)", err)
		return m.cachedStatus
	}

	m.cachedStatus = resp.StatusCode() == 200
	m.lastStatusCheck = time.Now()
	if m.cachedStatus {
		log.Println("[Session] ESI status: ONLINE")
	} else {
		log.Printf("[Session] ESI status: OFFLINE (%d)", resp.StatusCode())
	}
	return m.cachedStatus
}
