package authclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authServer simulates the protected API plus the refresh endpoint. It
// accepts only its current access token and rotates it on refresh.
type authServer struct {
	mu            sync.Mutex
	validAccess   string
	validRefresh  string
	refreshCalls  atomic.Int64
	refreshStatus int
	refreshGate   chan struct{}
}

func newAuthServer(access, refresh string) *authServer {
	return &authServer{validAccess: access, validRefresh: refresh, refreshStatus: http.StatusOK}
}

func (s *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if s.refreshGate != nil {
			<-s.refreshGate
		}
		if s.refreshStatus != http.StatusOK {
			w.WriteHeader(s.refreshStatus)
			return
		}

		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		if req.RefreshToken != s.validRefresh {
			s.mu.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.validAccess = s.validAccess + "+"
		s.validRefresh = s.validRefresh + "+"
		access, refresh := s.validAccess, s.validRefresh
		s.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  access,
			"refreshToken": refresh,
		})
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := "Bearer " + s.validAccess
		s.mu.Unlock()
		if r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Seen-Header", r.Header.Get("X-Test"))
		w.Write(body)
	})
	return mux
}

func TestAttachesAccessToken(t *testing.T) {
	server := newAuthServer("good", "refresh-1")
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := New(ts.URL)
	client.SetTokens("good", "refresh-1")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/echo", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, server.refreshCalls.Load())
}

func TestRefreshOn401AndRetryOnce(t *testing.T) {
	server := newAuthServer("fresh", "refresh-1")
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := New(ts.URL)
	client.SetTokens("stale", "refresh-1")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/echo", strings.NewReader("payload"))
	require.NoError(t, err)
	req.Header.Set("X-Test", "kept")

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// The retried request was rebuilt from the captured body with the
	// original headers intact.
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, "kept", resp.Header.Get("X-Seen-Header"))
	assert.EqualValues(t, 1, server.refreshCalls.Load())

	access, refresh := client.Tokens()
	assert.Equal(t, "fresh+", access)
	assert.Equal(t, "refresh-1+", refresh)
}

func TestConcurrentFailuresCollapseToOneRefresh(t *testing.T) {
	server := newAuthServer("fresh", "refresh-1")
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := New(ts.URL)
	client.SetTokens("stale", "refresh-1")

	const callers = 10
	var wg sync.WaitGroup
	statuses := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/echo", nil)
			if err != nil {
				errs[i] = err
				return
			}
			resp, err := client.Do(context.Background(), req)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
	assert.EqualValues(t, 1, server.refreshCalls.Load(),
		"a burst of failures must trigger at most one refresh call")
}

func TestRefreshFailurePropagatesOriginal401(t *testing.T) {
	server := newAuthServer("fresh", "refresh-1")
	server.refreshStatus = http.StatusUnauthorized
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := New(ts.URL)
	client.SetTokens("stale", "refresh-1")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/echo", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The caller sees the original authorization failure, not a refresh
	// error, and the request was not retried in a loop.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, server.refreshCalls.Load())
}

func TestNoRefreshTokenPropagates401(t *testing.T) {
	server := newAuthServer("fresh", "refresh-1")
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := New(ts.URL)
	client.SetTokens("stale", "")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/echo", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 0, server.refreshCalls.Load())
}

func TestCancelledWaiterUnblocks(t *testing.T) {
	server := newAuthServer("fresh", "refresh-1")
	server.refreshGate = make(chan struct{})
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := New(ts.URL)
	client.SetTokens("stale", "refresh-1")

	// First caller gets stuck inside the refresh call while the server
	// holds the gate closed.
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/echo", nil)
		resp, err := client.Do(context.Background(), req)
		if err == nil {
			resp.Body.Close()
		}
	}()

	// Wait until the refresh request reached the server.
	require.Eventually(t, func() bool { return server.refreshCalls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// Second caller must not wait for the unrelated refresh once its
	// context is cancelled; it gets its original 401 back.
	ctx, cancel := context.WithCancel(context.Background())
	secondDone := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/echo", nil)
		resp, err := client.Do(ctx, req)
		if err != nil {
			secondDone <- -1
			return
		}
		defer resp.Body.Close()
		secondDone <- resp.StatusCode
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case status := <-secondDone:
		assert.Equal(t, http.StatusUnauthorized, status)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller stayed blocked on the refresh lock")
	}

	close(server.refreshGate)
	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("refreshing caller never finished")
	}
}
