// Package authclient wraps outbound HTTP calls from a dependent client
// process: it attaches the current access token, and on an authorization
// failure refreshes the token pair at most once, collapsing concurrent
// failing requests into a single refresh call.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrNoRefreshToken means a 401 was received but the client holds no
// refresh token to recover with.
var ErrNoRefreshToken = errors.New("no refresh token available")

// Client is one coordinator per client process. Token state is shared by
// all in-flight requests; the refresh critical section is a capacity-one
// channel so waiters can abandon it on context cancellation, which a
// plain mutex cannot offer.
type Client struct {
	baseURL    string
	refreshURL string
	httpClient *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string

	refreshSem chan struct{}
}

type Option func(*Client)

// WithHTTPClient substitutes the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRefreshURL overrides the default refresh endpoint path.
func WithRefreshURL(url string) Option {
	return func(c *Client) { c.refreshURL = url }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		refreshURL: baseURL + "/api/auth/refresh-token",
		httpClient: http.DefaultClient,
		refreshSem: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokens stores a token pair so subsequent requests and concurrent
// readers observe it.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

// Tokens returns the currently stored pair.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.refreshToken
}

// Do sends the request with the current access token. On a 401 it tries
// one token refresh and retries the request once; when the refresh fails
// the original 401 response is returned untouched so the caller sees the
// authorization failure, not the refresh failure. The request body is
// read up front because it can only be consumed once by the transport.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to capture request body: %w", err)
		}
	}

	access, _ := c.Tokens()
	resp, err := c.send(ctx, req, body, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	newAccess, refreshErr := c.refreshAccessToken(ctx, access)
	if refreshErr != nil {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return c.send(ctx, req, body, newAccess)
}

// send rebuilds the request from the captured body with the original
// headers plus the authorization header.
func (c *Client) send(ctx context.Context, req *http.Request, body []byte, access string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	attempt, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), reader)
	if err != nil {
		return nil, err
	}
	attempt.Header = req.Header.Clone()
	if attempt.Header == nil {
		attempt.Header = make(http.Header)
	}
	if access != "" {
		attempt.Header.Set("Authorization", "Bearer "+access)
	}

	return c.httpClient.Do(attempt)
}

// refreshAccessToken is the single-flight critical section. A winner
// performs the network refresh; everyone who arrives later finds a token
// different from its stale one and returns immediately. The semaphore is
// released on every exit path.
func (c *Client) refreshAccessToken(ctx context.Context, stale string) (string, error) {
	select {
	case c.refreshSem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.refreshSem }()

	access, refresh := c.Tokens()
	if access != stale && access != "" {
		// Another request already refreshed; skip the network call.
		return access, nil
	}
	if refresh == "" {
		return "", ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refresh})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}

	c.SetTokens(result.AccessToken, result.RefreshToken)
	return result.AccessToken, nil
}
