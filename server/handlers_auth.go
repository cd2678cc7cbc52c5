package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-portal-session/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginHandler exchanges credentials for a token pair
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.GetByEmail(req.Email)
	if err != nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !user.Active {
		writeError(w, http.StatusUnauthorized, "Account is disabled")
		return
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}

	s.setRefreshCookie(w, resp.RefreshToken)
	s.logger.Info().Str("user", user.Email).Msg("login")
	writeJSON(w, http.StatusOK, resp)
}

// RefreshHandler rotates a refresh token into a new token pair
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	userID, err := s.refreshTokens.Redeem(req.Refresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}

	s.setRefreshCookie(w, resp.RefreshToken)
	writeJSON(w, http.StatusOK, resp)
}

// LogoutHandler ends the session server-side. Always succeeds; an
// unauthenticated logout is still a logout.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Invalidate the refresh token when the caller still holds a valid
	// access token; otherwise there is nothing to do.
	if authHeader := r.Header.Get("Authorization"); len(authHeader) > 7 {
		if userID, err := s.verifyAccessToken(authHeader[7:]); err == nil {
			s.refreshTokens.DeleteForUser(userID)
		}
	}

	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ProfileHandler returns the authenticated user's identity record.
// RequireAuth has already validated the token.
func (s *Server) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, _ := r.Context().Value(ContextKeyUserID).(string)
	user, err := s.users.GetByID(userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unknown user")
		return
	}

	writeJSON(w, http.StatusOK, user.User)
}

func (s *Server) issueTokens(user *users.StoredUser) (*tokenResponse, error) {
	accessToken, err := s.mintAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.refreshTokens.Create(user.ID)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
	}, nil
}

// setRefreshCookie mirrors the persisted-state contract for browser callers:
// SameSite=Strict always, Secure outside DEV
func (s *Server) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(s.config.GetSessionTimeout().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   s.config.GetEnv() != "DEV",
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   s.config.GetEnv() != "DEV",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
