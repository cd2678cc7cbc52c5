package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"

	interrors "github.com/jrsteele09/go-portal-session/internal/errors"
)

const refreshTokenLength = 32 // bytes of entropy (256 bits)

// storedRefreshToken is the server-side metadata behind an opaque refresh
// token string
type storedRefreshToken struct {
	UserID   string
	IssuedAt time.Time
}

// RefreshManager handles refresh token creation, validation, and rotation.
// One refresh token per user; issuing a new one invalidates the old.
type RefreshManager struct {
	expiry  time.Duration
	nowTime func() time.Time

	mu     sync.Mutex
	tokens map[string]storedRefreshToken // token -> metadata
	byUser map[string]string             // userID -> token
}

// NewRefreshManager creates a refresh token manager with the given expiry
func NewRefreshManager(expiry time.Duration) *RefreshManager {
	return &RefreshManager{
		expiry:  expiry,
		nowTime: time.Now,
		tokens:  make(map[string]storedRefreshToken),
		byUser:  make(map[string]string),
	}
}

// Create generates a new refresh token for userID, rotating out any existing
// token for the same user
func (m *RefreshManager) Create(userID string) (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[RefreshManager.Create] rand.Read")
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byUser[userID]; ok {
		delete(m.tokens, existing)
	}
	m.tokens[tokenStr] = storedRefreshToken{UserID: userID, IssuedAt: m.nowTime()}
	m.byUser[userID] = tokenStr
	return tokenStr, nil
}

// Redeem validates a refresh token and consumes it, returning the user it
// belongs to. Unknown or expired tokens fail.
func (m *RefreshManager) Redeem(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.tokens[token]
	if !ok {
		return "", interrors.ErrInvalidRefreshToken
	}
	delete(m.tokens, token)
	delete(m.byUser, stored.UserID)

	if m.nowTime().Sub(stored.IssuedAt) > m.expiry {
		return "", interrors.ErrRefreshTokenExpired
	}
	return stored.UserID, nil
}

// DeleteForUser invalidates the user's refresh token, if any
func (m *RefreshManager) DeleteForUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.byUser[userID]; ok {
		delete(m.tokens, token)
		delete(m.byUser, userID)
	}
}
