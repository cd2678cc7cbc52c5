package auth

import "github.com/jrsteele09/go-portal-session/users"

// AuthState is the published, UI-facing view of authentication. The
// controller is its only writer; everyone else reads via State or Subscribe.
//
// Invariant: IsAuthenticated == (User != nil). IsLoading is true exactly
// while a login, logout, refresh, or rehydration is in flight.
type AuthState struct {
	User            *users.User
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// Credentials are the login form fields
type Credentials struct {
	Email    string
	Password string
}

// CachePurger removes user-scoped cached data on logout. The SDK has no
// opinion about the caller's cache layer; it just asks it to purge.
type CachePurger interface {
	Purge()
}

// PurgerFunc adapts a plain function to CachePurger
type PurgerFunc func()

func (f PurgerFunc) Purge() { f() }
