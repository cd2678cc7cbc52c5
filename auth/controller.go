// Package auth orchestrates login, logout, and refresh against the remote
// API and keeps the published AuthState consistent with the session manager.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-session/api"
	interrors "github.com/jrsteele09/go-portal-session/internal/errors"
	"github.com/jrsteele09/go-portal-session/session"
	"github.com/jrsteele09/go-portal-session/users"
)

const sessionExpiredMessage = "Session expired"

// ExpiryNotifier is satisfied by the transport interceptor; the controller
// subscribes to its session-expired signal without depending on the package.
type ExpiryNotifier interface {
	OnSessionExpired(fn func())
}

// Controller owns the AuthState and mutates the session manager on behalf of
// the three high-level operations (login, logout, refresh).
type Controller struct {
	api      *api.Client
	sessions *session.Manager
	logger   zerolog.Logger
	purger   CachePurger

	mu          sync.RWMutex
	state       AuthState
	subscribers []func(AuthState)
}

// Option defines a function type to modify the Controller instance.
type Option func(*Controller)

// WithLogger sets the controller's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithCachePurger sets the cache layer purged on logout
func WithCachePurger(purger CachePurger) Option {
	return func(c *Controller) {
		c.purger = purger
	}
}

// NewController creates an auth controller over the api client and session
// manager
func NewController(apiClient *api.Client, sessions *session.Manager, options ...Option) (*Controller, error) {
	if apiClient == nil {
		return nil, errors.New("[NewController] api client is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewController] session manager is required")
	}

	c := &Controller{
		api:      apiClient,
		sessions: sessions,
		logger:   zerolog.Nop(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// State returns a snapshot of the current AuthState
func (c *Controller) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe registers fn to run on every state change. fn is called
// immediately with the current state so late subscribers don't miss it.
func (c *Controller) Subscribe(fn func(AuthState)) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	current := c.state
	c.mu.Unlock()

	fn(current)
}

// Listen subscribes the controller to the interceptor's session-expired
// signal, decoupling the interceptor (no UI state) from the controller
// (owns it).
func (c *Controller) Listen(notifier ExpiryNotifier) {
	notifier.OnSessionExpired(func() {
		c.logger.Info().Msg("session expired signal received")
		c.publish(AuthState{Error: sessionExpiredMessage})
	})
}

// Login exchanges credentials for a session. All-or-nothing: any failure
// (validation, token call, profile fetch) leaves no partially authenticated
// state behind.
func (c *Controller) Login(ctx context.Context, creds Credentials) error {
	// Field-level failures never reach the session layer
	if err := users.ValidateCredentials(creds.Email, creds.Password); err != nil {
		return errors.Wrap(err, "[Login] validate credentials")
	}

	c.publish(AuthState{IsLoading: true})

	tokens, err := c.api.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		return c.failLogin(err, "login request")
	}

	user, err := c.api.ProfileWithToken(ctx, tokens.AccessToken)
	if err != nil {
		return c.failLogin(err, "profile fetch")
	}

	if err := c.sessions.SetSession(user, tokens); err != nil {
		return c.failLogin(err, "persist session")
	}

	c.logger.Info().Str("user", user.Email).Msg("login succeeded")
	c.publish(AuthState{User: user, IsAuthenticated: true})
	return nil
}

// Logout ends the session. The remote call is best-effort; logout always
// completes client-side.
func (c *Controller) Logout(ctx context.Context) {
	current := c.State()
	current.IsLoading = true
	c.publish(current)

	if err := c.api.Logout(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("remote logout failed, continuing")
	}

	c.sessions.ClearSession()
	if c.purger != nil {
		c.purger.Purge()
	}
	c.publish(AuthState{})
}

// RefreshTokens mints a new token bundle from the stored refresh token.
// Failure clears the session and publishes the expired state.
func (c *Controller) RefreshTokens(ctx context.Context) error {
	refreshToken := c.sessions.RefreshToken()
	if refreshToken == "" {
		c.sessions.ClearSession()
		c.publish(AuthState{Error: sessionExpiredMessage})
		return interrors.ErrNoRefreshToken
	}

	tokens, err := c.api.Refresh(ctx, refreshToken)
	if err != nil {
		c.sessions.ClearSession()
		c.publish(AuthState{Error: sessionExpiredMessage})
		return errors.Wrap(err, "[RefreshTokens] refresh request")
	}

	if err := c.sessions.UpdateTokens(tokens); err != nil && !interrors.Is(err, interrors.ErrSessionNotFound) {
		return errors.Wrap(err, "[RefreshTokens] update tokens")
	}
	return nil
}

// Rehydrate restores a persisted session on startup. The persisted user is
// published optimistically for fast perceived load, then re-validated with a
// profile fetch; a failed re-validation downgrades to unauthenticated.
func (c *Controller) Rehydrate(ctx context.Context) {
	persisted := c.sessions.GetSession()
	if persisted == nil {
		c.publish(AuthState{})
		return
	}

	c.publish(AuthState{User: persisted.User, IsAuthenticated: true, IsLoading: true})

	user, err := c.api.Profile(ctx)
	if err != nil {
		c.logger.Info().Err(err).Msg("rehydration re-validation failed, clearing session")
		c.sessions.ClearSession()
		c.publish(AuthState{})
		return
	}

	if err := c.sessions.UpdateUser(user); err != nil && !interrors.Is(err, interrors.ErrSessionNotFound) {
		c.logger.Warn().Err(err).Msg("could not persist re-validated user")
	}
	c.publish(AuthState{User: user, IsAuthenticated: true})
}

// StartAutoRefresh proactively refreshes tokens inside the threshold window.
// A convenience layer on top of lazy expiry, not a correctness requirement;
// stops when ctx is cancelled.
func (c *Controller) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.sessions.ShouldRefresh() {
					if err := c.RefreshTokens(ctx); err != nil {
						c.logger.Debug().Err(err).Msg("auto refresh failed")
					}
				}
			}
		}
	}()
}

// failLogin normalizes login failure: cleared session, unauthenticated state
// with the error message, wrapped error for the caller
func (c *Controller) failLogin(err error, step string) error {
	c.sessions.ClearSession()

	message := "Login failed"
	apiErr := &api.Error{}
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	}
	c.publish(AuthState{Error: message})
	return errors.Wrapf(err, "[Login] %s", step)
}

// publish replaces the AuthState and notifies subscribers. The invariant
// IsAuthenticated == (User != nil) is enforced here, at the single writer.
func (c *Controller) publish(state AuthState) {
	state.IsAuthenticated = state.User != nil

	c.mu.Lock()
	c.state = state
	subscribers := make([]func(AuthState), len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(state)
	}
}
