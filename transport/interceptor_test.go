package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-portal-session/internal/errors"
	"github.com/jrsteele09/go-portal-session/transport"
)

// fakeSessions is a minimal SessionTokens implementation for exercising the
// interceptor without a real session manager
type fakeSessions struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	cleared      int
	updateErr    error
}

func (f *fakeSessions) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessToken
}

func (f *fakeSessions) RefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshToken
}

func (f *fakeSessions) UpdateTokens(tokens *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.accessToken = tokens.AccessToken
	f.refreshToken = tokens.RefreshToken
	return nil
}

func (f *fakeSessions) ClearSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = ""
	f.refreshToken = ""
	f.cleared++
}

func (f *fakeSessions) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

func staticRefresh(token *oauth2.Token, err error) transport.RefreshFunc {
	return func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return token, err
	}
}

func newClient(t *testing.T, sessions transport.SessionTokens, refresh transport.RefreshFunc, options ...transport.Option) *http.Client {
	t.Helper()
	interceptor, err := transport.NewInterceptor(nil, sessions, refresh, options...)
	require.NoError(t, err)
	return &http.Client{Transport: interceptor, Timeout: 5 * time.Second}
}

func TestAttachesBearerAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "access-1", refreshToken: "refresh-1"}
	client := newClient(t, sessions, staticRefresh(nil, errors.ErrUnsupported))

	resp, err := client.Get(srv.URL + "/api/profile/")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer access-1", gotAuth)
	require.NotEmpty(t, gotRequestID)
}

func TestSkipAuthPathsCarryNoToken(t *testing.T) {
	var gotAuth string
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		// A 401 here must pass through without triggering a refresh
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "access-1", refreshToken: "refresh-1"}
	refresh := func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		atomic.AddInt32(&refreshCalls, 1)
		return nil, errors.ErrUnsupported
	}
	client := newClient(t, sessions, refresh)

	resp, err := client.Post(srv.URL+"/api/auth/login/", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, gotAuth)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(0), atomic.LoadInt32(&refreshCalls))
}

func TestRefreshAndReplayOn401(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 1 {
			require.Equal(t, "Bearer stale-token", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-1"})
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "stale-token", refreshToken: "refresh-1"}
	client := newClient(t, sessions, staticRefresh(&oauth2.Token{
		AccessToken:  "fresh-token",
		RefreshToken: "refresh-2",
		Expiry:       time.Now().Add(time.Hour),
	}, nil))

	resp, err := client.Get(srv.URL + "/api/profile/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), atomic.LoadInt32(&requests))
	require.Equal(t, "fresh-token", sessions.AccessToken())
	require.Equal(t, "refresh-2", sessions.RefreshToken())
}

func TestReplayRewindsRequestBody(t *testing.T) {
	var requests int32
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make([]byte, 64)
		n, _ := r.Body.Read(data)
		lastBody = string(data[:n])
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "stale-token", refreshToken: "refresh-1"}
	client := newClient(t, sessions, staticRefresh(&oauth2.Token{AccessToken: "fresh-token"}, nil))

	// strings.Reader bodies get GetBody for free from http.NewRequest
	resp, err := client.Post(srv.URL+"/api/profile/", "application/json", strings.NewReader(`{"username":"alice"}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"username":"alice"}`, lastBody)
}

func TestFailedRefreshClearsSessionAndNotifiesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "stale-token", refreshToken: "refresh-1"}
	interceptor, err := transport.NewInterceptor(nil, sessions, staticRefresh(nil, errors.ErrInvalidRefreshToken))
	require.NoError(t, err)

	var notifications int32
	interceptor.OnSessionExpired(func() { atomic.AddInt32(&notifications, 1) })

	client := &http.Client{Transport: interceptor, Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/api/profile/")
	require.NoError(t, err)
	resp.Body.Close()

	// The original 401 is surfaced, the session is cleared, subscribers are
	// notified exactly once
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 1, sessions.clearCount())
	require.Equal(t, int32(1), atomic.LoadInt32(&notifications))
}

func TestMissingRefreshTokenExpiresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "stale-token"}
	var refreshCalls int32
	refresh := func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		atomic.AddInt32(&refreshCalls, 1)
		return nil, nil
	}

	client := newClient(t, sessions, refresh)
	resp, err := client.Get(srv.URL + "/api/profile/")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(0), atomic.LoadInt32(&refreshCalls))
	require.Equal(t, 1, sessions.clearCount())
}

func TestRefreshReturningNoTokenExpiresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// A refresh func yielding neither a token nor an error counts as a
	// failed cycle, not a replay with an empty bearer
	sessions := &fakeSessions{accessToken: "stale-token", refreshToken: "refresh-1"}
	interceptor, err := transport.NewInterceptor(nil, sessions, staticRefresh(nil, nil))
	require.NoError(t, err)

	var notifications int32
	interceptor.OnSessionExpired(func() { atomic.AddInt32(&notifications, 1) })

	client := &http.Client{Transport: interceptor, Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/api/profile/")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 1, sessions.clearCount())
	require.Equal(t, int32(1), atomic.LoadInt32(&notifications))
}

func TestSecond401Propagates(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "stale-token", refreshToken: "refresh-1"}
	client := newClient(t, sessions, staticRefresh(&oauth2.Token{AccessToken: "still-rejected"}, nil))

	resp, err := client.Get(srv.URL + "/api/profile/")
	require.NoError(t, err)
	resp.Body.Close()

	// One refresh, one replay, then the second 401 comes back untouched
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	var refreshCalls int32
	var mu sync.Mutex
	accepted := map[string]bool{"stale-token": false, "fresh-token": true}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		mu.Lock()
		ok := accepted[token]
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sessions := &fakeSessions{accessToken: "stale-token", refreshToken: "refresh-1"}
	refresh := func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		atomic.AddInt32(&refreshCalls, 1)
		// Hold the single-flight open long enough for every caller to join
		time.Sleep(200 * time.Millisecond)
		return &oauth2.Token{AccessToken: "fresh-token", RefreshToken: "refresh-2"}, nil
	}
	client := newClient(t, sessions, refresh)

	const callers = 8
	var wg sync.WaitGroup
	statuses := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/api/profile/")
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	for i, status := range statuses {
		require.Equal(t, http.StatusOK, status, "caller %d", i)
	}
}

func TestLapsedSessionDuringRefreshStillReplays(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// UpdateTokens reports no session; the replay must still carry the token
	// from the refresh response
	sessions := &fakeSessions{accessToken: "stale-token", refreshToken: "refresh-1", updateErr: errors.ErrSessionNotFound}
	client := newClient(t, sessions, staticRefresh(&oauth2.Token{AccessToken: "fresh-token"}, nil))

	resp, err := client.Get(srv.URL + "/api/profile/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInterceptorConstructorValidation(t *testing.T) {
	_, err := transport.NewInterceptor(nil, nil, staticRefresh(nil, nil))
	require.Error(t, err)

	_, err = transport.NewInterceptor(nil, &fakeSessions{}, nil)
	require.Error(t, err)
}
