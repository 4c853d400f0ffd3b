package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/justapithecus/adit/iox"
)

// DefaultTimeout is the default authority request timeout.
const DefaultTimeout = 10 * time.Second

// Authority answers "what level does this credential hold on this
// resource." The gateway never stores grants itself; it only caches
// the authority's answers.
type Authority interface {
	Check(ctx context.Context, credential, resource string) (Level, error)
}

// AuthorityConfig configures the HTTP authority client.
type AuthorityConfig struct {
	// URL is the check endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
}

// HTTPAuthority fetches permissions from an external authority service.
type HTTPAuthority struct {
	config AuthorityConfig
	client *http.Client
}

// NewHTTPAuthority creates an authority client from the given config.
// Returns an error if the URL is empty.
func NewHTTPAuthority(cfg AuthorityConfig) (*HTTPAuthority, error) {
	if cfg.URL == "" {
		return nil, errors.New("authority requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPAuthority{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type checkRequest struct {
	Credential string `json:"credential"`
	Resource   string `json:"resource"`
}

type checkResponse struct {
	Level string `json:"level"`
}

// StatusError is returned for non-2xx authority responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Check posts the pair to the authority and returns the granted level.
func (a *HTTPAuthority) Check(ctx context.Context, credential, resource string) (Level, error) {
	body, err := json.Marshal(checkRequest{Credential: credential, Resource: resource})
	if err != nil {
		return LevelNone, fmt.Errorf("authority: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return LevelNone, fmt.Errorf("authority: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return LevelNone, fmt.Errorf("authority: request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return LevelNone, &StatusError{Code: resp.StatusCode}
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return LevelNone, fmt.Errorf("authority: decode response: %w", err)
	}
	level, err := ParseLevel(decoded.Level)
	if err != nil {
		return LevelNone, fmt.Errorf("authority: %w", err)
	}
	return level, nil
}

// Close releases client resources.
func (a *HTTPAuthority) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// StaticAuthority serves grants from an in-memory table. Pairs without
// a grant answer none. Used for single-tenant deployments without an
// authority service, and in tests.
type StaticAuthority struct {
	mu     sync.RWMutex
	grants map[cacheKey]Level
}

// NewStaticAuthority creates an empty static authority.
func NewStaticAuthority() *StaticAuthority {
	return &StaticAuthority{grants: make(map[cacheKey]Level)}
}

// Grant records a level for the pair.
func (a *StaticAuthority) Grant(credential, resource string, level Level) {
	a.mu.Lock()
	a.grants[cacheKey{credential, resource}] = level
	a.mu.Unlock()
}

// Revoke removes any grant for the pair.
func (a *StaticAuthority) Revoke(credential, resource string) {
	a.mu.Lock()
	delete(a.grants, cacheKey{credential, resource})
	a.mu.Unlock()
}

// Check returns the recorded level, or none.
func (a *StaticAuthority) Check(_ context.Context, credential, resource string) (Level, error) {
	a.mu.RLock()
	level, ok := a.grants[cacheKey{credential, resource}]
	a.mu.RUnlock()
	if !ok {
		return LevelNone, nil
	}
	return level, nil
}

var _ Authority = (*HTTPAuthority)(nil)
var _ Authority = (*StaticAuthority)(nil)
