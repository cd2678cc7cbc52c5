package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-portal-session/credstore"
	interrors "github.com/jrsteele09/go-portal-session/internal/errors"
	"github.com/jrsteele09/go-portal-session/users"
	"golang.org/x/oauth2"
)

const (
	defaultRefreshThreshold = 5 * time.Minute
	defaultSessionTimeout   = 24 * time.Hour
)

// Manager is the single source of truth for the current session. Validity is
// computed lazily on read, so correctness never depends on a background timer.
type Manager struct {
	repo             credstore.Repo
	refreshThreshold time.Duration
	sessionTimeout   time.Duration
	nowTime          func() time.Time

	mu      sync.RWMutex
	session *Session
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithRefreshThreshold sets how long before expiry a token counts as
// needing refresh
func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshThreshold = d
	}
}

// WithSessionTimeout sets the max-age of persisted credentials
func WithSessionTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.sessionTimeout = d
	}
}

// NewManager creates a session manager backed by repo and rehydrates any
// persisted session. Malformed persisted data is treated as "no session".
func NewManager(repo credstore.Repo, options ...Option) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] credential repo is required")
	}

	m := &Manager{
		repo:             repo,
		refreshThreshold: defaultRefreshThreshold,
		sessionTimeout:   defaultSessionTimeout,
		nowTime:          time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	m.initializeSession()
	return m, nil
}

// initializeSession rehydrates the in-memory session from the store.
// Corrupt or partially-shaped records clear the store rather than erroring.
func (m *Manager) initializeSession() {
	data, err := m.repo.Get(credstore.SessionKey)
	if err != nil {
		return
	}

	var persisted persistedSession
	if err := json.Unmarshal(data, &persisted); err != nil || !persisted.valid() {
		m.ClearSession()
		return
	}

	refreshToken, _ := m.repo.Get(credstore.RefreshTokenKey)
	m.mu.Lock()
	m.session = &Session{
		User: persisted.User,
		Tokens: &oauth2.Token{
			AccessToken:  persisted.AccessToken,
			TokenType:    persisted.TokenType,
			RefreshToken: string(refreshToken),
			Expiry:       persisted.ExpiresAt,
		},
		ExpiresAt: persisted.ExpiresAt,
	}
	m.mu.Unlock()
}

// GetSession returns the current session if it is still valid. An expired
// session is cleared on read (lazy expiry) and nil is returned.
func (m *Manager) GetSession() *Session {
	m.mu.RLock()
	current := m.session
	m.mu.RUnlock()

	if current == nil {
		return nil
	}
	if !m.nowTime().Before(current.ExpiresAt) {
		m.ClearSession()
		return nil
	}
	return current
}

// SetSession replaces the session with user + tokens and persists it.
// The expiry is taken from the token bundle, falling back to the access
// token's JWT exp claim when the bundle carries none.
func (m *Manager) SetSession(user *users.User, tokens *oauth2.Token) error {
	if user == nil {
		return errors.New("[SetSession] user is required")
	}
	if tokens == nil || tokens.AccessToken == "" {
		return errors.New("[SetSession] access token is required")
	}

	expiresAt, err := m.tokenExpiry(tokens)
	if err != nil {
		return errors.Wrap(err, "[SetSession] tokenExpiry")
	}

	m.mu.Lock()
	m.session = &Session{User: user, Tokens: tokens, ExpiresAt: expiresAt}
	m.mu.Unlock()

	return m.persist()
}

// ClearSession nulls the in-memory session and deletes both store entries.
// Safe to call when already empty.
func (m *Manager) ClearSession() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	_ = m.repo.Delete(credstore.SessionKey)
	_ = m.repo.Delete(credstore.RefreshTokenKey)
}

// IsValid reports whether a session exists and its expiry has not passed
func (m *Manager) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.session != nil && m.nowTime().Before(m.session.ExpiresAt)
}

// ShouldRefresh reports whether now is within the refresh-threshold window
// before expiry, but not yet past it
func (m *Manager) ShouldRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return false
	}
	now := m.nowTime()
	threshold := m.session.ExpiresAt.Add(-m.refreshThreshold)
	return !now.Before(threshold) && now.Before(m.session.ExpiresAt)
}

// UpdateTokens replaces the token bundle on the current session, recomputes
// the expiry, and re-persists. The user record is retained.
func (m *Manager) UpdateTokens(tokens *oauth2.Token) error {
	if tokens == nil || tokens.AccessToken == "" {
		return errors.New("[UpdateTokens] access token is required")
	}

	expiresAt, err := m.tokenExpiry(tokens)
	if err != nil {
		return errors.Wrap(err, "[UpdateTokens] tokenExpiry")
	}

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return interrors.ErrSessionNotFound
	}
	m.session = &Session{User: m.session.User, Tokens: tokens, ExpiresAt: expiresAt}
	m.mu.Unlock()

	return m.persist()
}

// UpdateUser replaces the user record on the current session, retaining the
// token bundle, and re-persists.
func (m *Manager) UpdateUser(user *users.User) error {
	if user == nil {
		return errors.New("[UpdateUser] user is required")
	}

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return interrors.ErrSessionNotFound
	}
	m.session = &Session{User: user, Tokens: m.session.Tokens, ExpiresAt: m.session.ExpiresAt}
	m.mu.Unlock()

	return m.persist()
}

// AccessToken returns the current access token, or "" once the session has
// expired (goes through GetSession, so expiry clears lazily)
func (m *Manager) AccessToken() string {
	session := m.GetSession()
	if session == nil {
		return ""
	}
	return session.Tokens.AccessToken
}

// RefreshToken reads the refresh token straight from the store. It is kept
// independent of session validity so a refresh can still be attempted
// slightly past access-token expiry.
func (m *Manager) RefreshToken() string {
	data, err := m.repo.Get(credstore.RefreshTokenKey)
	if err != nil {
		return ""
	}
	return string(data)
}

// User returns the current user, or nil once the session has expired
func (m *Manager) User() *users.User {
	session := m.GetSession()
	if session == nil {
		return nil
	}
	return session.User
}

// Info returns a diagnostic view of the current session, or nil when absent
func (m *Manager) Info() *SessionInfo {
	session := m.GetSession()
	if session == nil {
		return nil
	}

	return &SessionInfo{
		User:            session.User,
		ExpiresAt:       session.ExpiresAt,
		IsValid:         m.IsValid(),
		ShouldRefresh:   m.ShouldRefresh(),
		TimeUntilExpiry: session.ExpiresAt.Sub(m.nowTime()),
	}
}

// persist serializes the credential record and the refresh token under their
// separate store keys, each with max-age equal to the session timeout.
func (m *Manager) persist() error {
	m.mu.RLock()
	current := m.session
	m.mu.RUnlock()

	if current == nil {
		return nil
	}

	record := persistedSession{
		User:        current.User,
		AccessToken: current.Tokens.AccessToken,
		TokenType:   current.Tokens.TokenType,
		ExpiresAt:   current.ExpiresAt,
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return errors.Wrap(err, "[persist] marshal session record")
	}

	if err := m.repo.Set(credstore.SessionKey, data, m.sessionTimeout); err != nil {
		return errors.Wrap(err, "[persist] store session record")
	}
	if current.Tokens.RefreshToken != "" {
		if err := m.repo.Set(credstore.RefreshTokenKey, []byte(current.Tokens.RefreshToken), m.sessionTimeout); err != nil {
			return errors.Wrap(err, "[persist] store refresh token")
		}
	}
	return nil
}

// tokenExpiry resolves the absolute expiry of a token bundle. Bundles built
// from the wire carry Expiry already (now + expires_in); otherwise the JWT
// exp claim of the access token is used. No signature verification happens
// here - the server owns the signing key, the client only reads the claim.
func (m *Manager) tokenExpiry(tokens *oauth2.Token) (time.Time, error) {
	if !tokens.Expiry.IsZero() {
		return tokens.Expiry, nil
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokens.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time, nil
	}
	return time.Time{}, errors.New("token bundle carries no expiry")
}
