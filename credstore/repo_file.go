package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jrsteele09/go-portal-session/internal/errors"
)

// fileEntry is the on-disk shape of a stored credential
type fileEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FileRepo is a file-backed implementation of Repo. All entries live in a
// single JSON document written with 0600 permissions, so credentials survive
// process restarts without being world-readable.
type FileRepo struct {
	mu   sync.Mutex
	path string
}

// NewFileRepo creates a file-backed credential repository at path
// (e.g. ~/.portal/credentials.json)
func NewFileRepo(path string) *FileRepo {
	return &FileRepo{path: path}
}

// Set stores value under key with the given max-age
func (r *FileRepo) Set(key string, value []byte, maxAge time.Duration) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.load()
	entries[key] = fileEntry{Value: value, ExpiresAt: NowTimeFunc().Add(maxAge)}
	return r.save(entries)
}

// Get retrieves the value for key. Expired entries are removed lazily.
func (r *FileRepo) Get(key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.load()
	e, ok := entries[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	if NowTimeFunc().After(e.ExpiresAt) {
		delete(entries, key)
		_ = r.save(entries)
		return nil, errors.ErrNotFound
	}
	return e.Value, nil
}

// Delete removes a key
func (r *FileRepo) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.load()
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return r.save(entries)
}

// load reads the credential file. A missing or malformed file is treated as
// an empty store, never an error surfaced to the caller.
func (r *FileRepo) load() map[string]fileEntry {
	entries := make(map[string]fileEntry)
	data, err := os.ReadFile(r.path)
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return make(map[string]fileEntry)
	}
	return entries
}

func (r *FileRepo) save(entries map[string]fileEntry) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
