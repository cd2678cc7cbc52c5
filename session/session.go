// Package session owns the authenticated session for one client context:
// whether a usable session exists, and what tokens it holds.
package session

import (
	"time"

	"github.com/jrsteele09/go-portal-session/users"
	"golang.org/x/oauth2"
)

// Session is the authenticated state for one client context.
// A session is either fully present (user + tokens + expiry) or absent;
// partial sessions are never held or persisted.
type Session struct {
	User      *users.User   // Identity record from the profile endpoint
	Tokens    *oauth2.Token // Access + refresh token bundle
	ExpiresAt time.Time     // Absolute access-token expiry
}

// SessionInfo is a diagnostic projection of the current session, for UI
// consumption ("session expires in N minutes").
type SessionInfo struct {
	User            *users.User
	ExpiresAt       time.Time
	IsValid         bool
	ShouldRefresh   bool
	TimeUntilExpiry time.Duration
}

// persistedSession is the credential record serialized to the store.
// The refresh token is deliberately not part of it; it lives under its own
// store key so it can outlive the access token.
type persistedSession struct {
	User        *users.User `json:"user"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type,omitempty"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

func (p *persistedSession) valid() bool {
	return p != nil && p.User != nil && p.AccessToken != "" && !p.ExpiresAt.IsZero()
}
