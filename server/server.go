// Package server is a development implementation of the portal auth API
// (login, refresh, logout, profile) so the SDK and CLI can run end-to-end
// without the production backend. Tests use it through httptest.
package server

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-session/internal/config"
	"github.com/jrsteele09/go-portal-session/users"
)

const defaultAccessTokenTTL = 15 * time.Minute

// Server hosts the portal auth endpoints
type Server struct {
	config         config.Config
	users          users.Repo
	refreshTokens  *RefreshManager
	signingKey     []byte
	accessTokenTTL time.Duration
	logger         zerolog.Logger
	nowTime        func() time.Time
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithLogger sets the server's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAccessTokenTTL sets the lifetime of minted access tokens
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTokenTTL = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
		s.refreshTokens.nowTime = nowFunc
	}
}

// New creates a server over the given user repo. signingKey signs access
// tokens; it never leaves the server.
func New(cfg config.Config, userRepo users.Repo, signingKey []byte, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if userRepo == nil {
		return nil, errors.New("[server.New] user repo is required")
	}
	if len(signingKey) == 0 {
		return nil, errors.New("[server.New] signing key is required")
	}

	s := &Server{
		config:         cfg,
		users:          userRepo,
		refreshTokens:  NewRefreshManager(cfg.GetSessionTimeout()),
		signingKey:     signingKey,
		accessTokenTTL: defaultAccessTokenTTL,
		logger:         zerolog.Nop(),
		nowTime:        time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Handler returns the routed http.Handler for the portal API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return mux
}
