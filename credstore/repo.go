// Package credstore provides durable storage of session credentials across
// process restarts. Entries are small serialized records with an expiry; reads
// of expired entries behave as if the entry never existed.
package credstore

import "time"

// Store keys used by the session manager. The refresh token lives under its
// own key so it can be read independently of the session record.
const (
	SessionKey      = "auth_session"
	RefreshTokenKey = "refresh_token"
)

// Repo defines the interface for credential storage operations.
// Only the session manager reads and writes the store.
type Repo interface {
	// Set stores value under key with the given max-age
	Set(key string, value []byte, maxAge time.Duration) error

	// Get retrieves the value for key, or errors.ErrNotFound when the key
	// is absent or its max-age has passed
	Get(key string) ([]byte, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
}
