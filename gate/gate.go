// Package gate decides whether protected content may be rendered for the
// current authentication state: render, show a neutral loading placeholder,
// or redirect. One state machine replaces the per-role guard variants the
// portal UI grew over time.
package gate

import (
	"sync"

	"github.com/jrsteele09/go-portal-session/auth"
	"github.com/jrsteele09/go-portal-session/users"
)

// State is the gate's position in its check lifecycle
type State string

const (
	StateInitializing State = "initializing" // No evaluation has happened yet
	StateChecking     State = "checking"     // Auth state still loading; render neutral placeholder
	StateGranted      State = "granted"      // Render protected content
	StateDenied       State = "denied"       // Render fallback, never children
	StateRedirecting  State = "redirecting"  // Send the visitor elsewhere, never render children
)

// Policy selects what a role mismatch resolves to
type Policy string

const (
	PolicyDeny     Policy = "deny"     // Render the fallback
	PolicyRedirect Policy = "redirect" // Send to the counterpart dashboard
)

// Config parameterizes one gate instance
type Config struct {
	RequireVerified bool           // Unverified accounts are purged and sent to login
	RequireRole     users.RoleType // Empty means any authenticated user
	OnMismatch      Policy         // Deny or redirect on role mismatch
	LoginURL        string
	AdminHome       string
	UserHome        string
}

// Decision is the outcome of one evaluation
type Decision struct {
	State      State
	RedirectTo string // Set when State == StateRedirecting
	Reason     string // Human-readable cause, for fallback rendering/logging
}

// Gate evaluates AuthState against its configuration. Protected content must
// only be rendered on StateGranted; anything else renders a placeholder,
// fallback, or redirect.
type Gate struct {
	config Config
	purge  func()

	mu    sync.RWMutex
	state State
}

// Option defines a function type to modify the Gate instance.
type Option func(*Gate)

// WithPurge sets the function that wipes locally persisted credentials when
// an unverified account is turned away (stale tokens must not survive)
func WithPurge(purge func()) Option {
	return func(g *Gate) {
		g.purge = purge
	}
}

// New creates a gate from config, filling in conventional redirect targets
func New(config Config, options ...Option) *Gate {
	if config.LoginURL == "" {
		config.LoginURL = "/login"
	}
	if config.AdminHome == "" {
		config.AdminHome = "/admin/dashboard"
	}
	if config.UserHome == "" {
		config.UserHome = "/user/dashboard"
	}
	if config.OnMismatch == "" {
		config.OnMismatch = PolicyRedirect
	}

	g := &Gate{config: config, state: StateInitializing}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// State returns the gate's position after the most recent evaluation
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Evaluate runs the transition rules in priority order. Loading always wins:
// while the auth state is in flight the gate stays at StateChecking and
// never flashes protected content or a premature denial. Safe for concurrent
// use; one gate instance serves every request goroutine on a route.
func (g *Gate) Evaluate(authState auth.AuthState) Decision {
	decision := g.decide(authState)

	g.mu.Lock()
	g.state = decision.State
	g.mu.Unlock()

	return decision
}

func (g *Gate) decide(authState auth.AuthState) Decision {
	if authState.IsLoading {
		return Decision{State: StateChecking, Reason: "authentication check in progress"}
	}

	// 1. Not authenticated: back to login
	if !authState.IsAuthenticated || authState.User == nil {
		return Decision{State: StateRedirecting, RedirectTo: g.config.LoginURL, Reason: "not authenticated"}
	}

	user := authState.User

	// 2. Unverified accounts must not retain stale credentials
	if g.config.RequireVerified && !user.Verified {
		if g.purge != nil {
			g.purge()
		}
		return Decision{State: StateRedirecting, RedirectTo: g.config.LoginURL, Reason: "account not verified"}
	}

	// 3. Role mismatch: deny, or redirect to the counterpart dashboard so
	// the visitor never lands on a dead-end screen
	if g.config.RequireRole != "" && !g.roleMatches(user) {
		if g.config.OnMismatch == PolicyDeny {
			return Decision{State: StateDenied, Reason: "insufficient role"}
		}
		return Decision{State: StateRedirecting, RedirectTo: g.counterpartHome(), Reason: "insufficient role"}
	}

	// 4. All checks passed
	return Decision{State: StateGranted}
}

func (g *Gate) roleMatches(user *users.User) bool {
	switch g.config.RequireRole {
	case users.RoleAdmin:
		return user.IsAdmin()
	case users.RoleUser:
		return !user.IsAdmin()
	default:
		return user.Role == g.config.RequireRole
	}
}

// counterpartHome is where a role mismatch redirects: admin gates send
// regular users to their dashboard and user gates send admins to theirs
func (g *Gate) counterpartHome() string {
	if g.config.RequireRole == users.RoleAdmin {
		return g.config.UserHome
	}
	return g.config.AdminHome
}
