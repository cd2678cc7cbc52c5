package credstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-portal-session/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type entry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryRepo is an in-memory implementation of Repo.
// Suitable for tests and for processes that don't need persistence.
type InMemoryRepo struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewInMemoryRepo creates a new in-memory credential repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{entries: make(map[string]entry)}
}

// Set stores value under key with the given max-age
func (r *InMemoryRepo) Set(key string, value []byte, maxAge time.Duration) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make([]byte, len(value))
	copy(copied, value)
	r.entries[key] = entry{value: copied, expiresAt: NowTimeFunc().Add(maxAge)}
	return nil
}

// Get retrieves the value for key. Expired entries are removed lazily.
func (r *InMemoryRepo) Get(key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	if NowTimeFunc().After(e.expiresAt) {
		delete(r.entries, key)
		return nil, errors.ErrNotFound
	}

	copied := make([]byte, len(e.value))
	copy(copied, e.value)
	return copied, nil
}

// Delete removes a key
func (r *InMemoryRepo) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, key)
	return nil
}
