package server

import "net/http"

// Route paths served by the portal API
const (
	RouteLogin   = "/api/auth/login/"
	RouteRefresh = "/api/auth/refresh/"
	RouteLogout  = "/api/auth/logout/"
	RouteProfile = "/api/profile/"
)

func (s *Server) routes(mux *http.ServeMux) {
	base := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
	}

	mux.HandleFunc(RouteLogin, ChainMiddleware(s.LoginHandler, base...))
	mux.HandleFunc(RouteRefresh, ChainMiddleware(s.RefreshHandler, base...))
	mux.HandleFunc(RouteLogout, ChainMiddleware(s.LogoutHandler, base...))
	mux.HandleFunc(RouteProfile, ChainMiddleware(s.ProfileHandler, append(base, s.RequireAuth)...))
}
