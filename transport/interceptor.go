// Package transport makes token attachment and refresh-on-401 transparent to
// every caller issuing HTTP requests. At most one refresh is in flight at a
// time regardless of how many requests fail concurrently; the rest wait on
// its outcome and all succeed or fail together.
package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-portal-session/api"
	interrors "github.com/jrsteele09/go-portal-session/internal/errors"
)

// refreshGroupKey is the singleflight key; there is only ever one refresh
// operation per interceptor.
const refreshGroupKey = "refresh"

// defaultSkipAuthPaths are endpoints that must never carry an Authorization
// header and never trigger a refresh cycle
var defaultSkipAuthPaths = []string{
	"/auth/login/",
	"/auth/register/",
	"/auth/refresh/",
	"/auth/forgot-password/",
	"/auth/reset-password/",
}

// SessionTokens is the slice of the session manager the interceptor needs.
type SessionTokens interface {
	AccessToken() string
	RefreshToken() string
	UpdateTokens(tokens *oauth2.Token) error
	ClearSession()
}

// RefreshFunc exchanges a refresh token for a new bundle. It must reach the
// refresh endpoint directly, not back through this interceptor.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

type ctxKey int

const ctxKeyRetry ctxKey = iota

// Interceptor is an http.RoundTripper that attaches the current access token
// to outgoing requests and transparently replays them after a 401-triggered
// token refresh.
type Interceptor struct {
	base     http.RoundTripper
	sessions SessionTokens
	refresh  RefreshFunc

	skipAuthPaths []string
	logger        zerolog.Logger
	nowTime       func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	onExpired []func()
}

// Option defines a function type to modify the Interceptor instance.
type Option func(*Interceptor)

// WithSkipAuthPaths replaces the default skip-auth allow-list
func WithSkipAuthPaths(paths []string) Option {
	return func(i *Interceptor) {
		i.skipAuthPaths = paths
	}
}

// WithLogger sets the logger used for latency and refresh logging
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(i *Interceptor) {
		i.nowTime = nowFunc
	}
}

// NewInterceptor wraps base with token attachment and refresh-on-401.
// A nil base falls back to http.DefaultTransport.
func NewInterceptor(base http.RoundTripper, sessions SessionTokens, refresh RefreshFunc, options ...Option) (*Interceptor, error) {
	if sessions == nil {
		return nil, errors.New("[NewInterceptor] session tokens are required")
	}
	if refresh == nil {
		return nil, errors.New("[NewInterceptor] refresh func is required")
	}
	if base == nil {
		base = http.DefaultTransport
	}

	i := &Interceptor{
		base:          base,
		sessions:      sessions,
		refresh:       refresh,
		skipAuthPaths: defaultSkipAuthPaths,
		logger:        zerolog.Nop(),
		nowTime:       time.Now,
	}

	for _, opt := range options {
		opt(i)
	}

	return i, nil
}

// OnSessionExpired registers fn to run when a refresh cycle fails and the
// session is cleared. This replaces a global broadcast event: consumers are
// injected here at wiring time.
func (i *Interceptor) OnSessionExpired(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onExpired = append(i.onExpired, fn)
}

// RoundTrip implements http.RoundTripper
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	skip := i.shouldSkipAuth(req.URL.Path)

	// Tag with a request ID and note the start time for latency observation
	start := i.nowTime()
	out := req.Clone(req.Context())
	out.Header.Set("X-Request-ID", uuid.NewString())

	if !skip {
		if token := i.sessions.AccessToken(); token != "" {
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		return nil, &api.Error{
			Message: err.Error(),
			Status:  0,
			Code:    api.CodeNetwork,
			URL:     req.URL.Path,
			Method:  req.Method,
		}
	}

	i.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", i.nowTime().Sub(start)).
		Msg("api response")

	// Anything but a first-time 401 on an authenticated route passes through;
	// the api layer decides what a non-2xx means.
	if resp.StatusCode != http.StatusUnauthorized || skip || isRetry(req.Context()) {
		return resp, nil
	}

	token, refreshErr := i.singleFlightRefresh(req.Context())
	if refreshErr != nil {
		// Refresh failed; surface the original 401 untouched. The session
		// has already been cleared and subscribers notified.
		return resp, nil
	}

	retry, ok := i.replayableRequest(req, token.AccessToken)
	if !ok {
		// Request body cannot be rewound; the caller gets the original 401.
		i.logger.Warn().Str("url", req.URL.Path).Msg("cannot replay request without rewindable body")
		return resp, nil
	}

	// The original response is superseded by the replay
	resp.Body.Close()
	return i.RoundTrip(retry)
}

// singleFlightRefresh runs at most one refresh at a time; concurrent callers
// share the in-flight result. The key is forgotten once the call settles, so
// each refresh cycle starts with no waiters.
func (i *Interceptor) singleFlightRefresh(ctx context.Context) (*oauth2.Token, error) {
	// Detach from the triggering request so one cancelled caller cannot
	// poison the shared refresh; the refresh call carries its own timeout.
	refreshCtx := context.WithoutCancel(ctx)

	v, err, shared := i.group.Do(refreshGroupKey, func() (interface{}, error) {
		refreshToken := i.sessions.RefreshToken()
		if refreshToken == "" {
			i.expireSession()
			return nil, interrors.ErrNoRefreshToken
		}

		token, err := i.refresh(refreshCtx, refreshToken)
		if err != nil {
			i.expireSession()
			return nil, errors.Wrap(err, "[singleFlightRefresh] refresh")
		}
		if token == nil || token.AccessToken == "" {
			i.expireSession()
			return nil, errors.New("[singleFlightRefresh] refresh returned no token")
		}

		// Persist the new bundle. A session that lapsed between the 401 and
		// now has no user record to attach tokens to; the replay still uses
		// the fresh token and rehydration restores the user.
		if err := i.sessions.UpdateTokens(token); err != nil && !interrors.Is(err, interrors.ErrSessionNotFound) {
			return nil, errors.Wrap(err, "[singleFlightRefresh] update tokens")
		}
		return token, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		i.logger.Debug().Msg("request joined in-flight token refresh")
	}
	return v.(*oauth2.Token), nil
}

// expireSession clears the session and notifies subscribers exactly once per
// failed refresh cycle (this only runs inside the single-flight body).
func (i *Interceptor) expireSession() {
	i.sessions.ClearSession()

	i.mu.Lock()
	subscribers := make([]func(), len(i.onExpired))
	copy(subscribers, i.onExpired)
	i.mu.Unlock()

	for _, fn := range subscribers {
		fn()
	}
}

// replayableRequest rebuilds the original request for one retry with the new
// access token, marking it so a second 401 propagates instead of looping.
func (i *Interceptor) replayableRequest(req *http.Request, accessToken string) (*http.Request, bool) {
	retry := req.Clone(context.WithValue(req.Context(), ctxKeyRetry, true))
	retry.Header.Set("Authorization", "Bearer "+accessToken)

	if req.Body == nil {
		return retry, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	retry.Body = body
	return retry, true
}

func (i *Interceptor) shouldSkipAuth(path string) bool {
	for _, skip := range i.skipAuthPaths {
		if strings.Contains(path, skip) {
			return true
		}
	}
	return false
}

func isRetry(ctx context.Context) bool {
	retried, _ := ctx.Value(ctxKeyRetry).(bool)
	return retried
}
