package users

// StoredUser is the server-side record backing a portal account.
// The password hash never leaves the repo layer.
type StoredUser struct {
	User
	PasswordHash string
}

// Repo defines the interface for user storage operations.
// Used by the development server; the client SDK never touches it.
type Repo interface {
	// Upsert creates or updates a user keyed by email
	Upsert(user *StoredUser) error

	// GetByEmail retrieves a user by email address
	GetByEmail(email string) (*StoredUser, error)

	// GetByID retrieves a user by ID
	GetByID(id string) (*StoredUser, error)
}
