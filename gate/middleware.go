package gate

import (
	"net/http"

	"github.com/jrsteele09/go-portal-session/auth"
)

// Middleware adapts a gate to net/http handler chains. The auth state is read
// per request via stateFn so the decision always reflects the current session.
func Middleware(g *Gate, stateFn func() auth.AuthState) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := g.Evaluate(stateFn())
			switch decision.State {
			case StateGranted:
				next(w, r)
			case StateRedirecting:
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
			case StateDenied:
				http.Error(w, decision.Reason, http.StatusForbidden)
			default:
				// Auth state still loading; ask the client to retry rather
				// than flashing protected or denied content
				w.Header().Set("Retry-After", "1")
				http.Error(w, "authentication check in progress", http.StatusServiceUnavailable)
			}
		}
	}
}
