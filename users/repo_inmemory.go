package users

import (
	"fmt"
	"sync"

	"github.com/jrsteele09/go-portal-session/internal/errors"
)

// InMemoryRepo is an in-memory implementation of Repo
type InMemoryRepo struct {
	mu      sync.RWMutex
	byEmail map[string]*StoredUser
	byID    map[string]*StoredUser
}

// NewInMemoryRepo creates a new in-memory user repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		byEmail: make(map[string]*StoredUser),
		byID:    make(map[string]*StoredUser),
	}
}

// Upsert creates or updates a user
func (r *InMemoryRepo) Upsert(user *StoredUser) error {
	if user == nil || user.Email == "" {
		return fmt.Errorf("user email is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications
	stored := *user
	r.byEmail[user.Email] = &stored
	if user.ID != "" {
		r.byID[user.ID] = &stored
	}
	return nil
}

// GetByEmail retrieves a user by email address
func (r *InMemoryRepo) GetByEmail(email string) (*StoredUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byEmail[email]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetByID retrieves a user by ID
func (r *InMemoryRepo) GetByID(id string) (*StoredUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}
