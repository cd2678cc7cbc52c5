package server

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-portal-session/users"
)

// accessClaims are the claims carried by a portal access token
type accessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// mintAccessToken creates a signed access token for user
func (s *Server) mintAccessToken(user *users.StoredUser) (string, error) {
	now := s.nowTime()
	claims := accessClaims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "[mintAccessToken] sign")
	}
	return signed, nil
}

// verifyAccessToken validates signature and expiry, returning the user ID
func (s *Server) verifyAccessToken(raw string) (string, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.nowTime))
	if err != nil {
		return "", errors.Wrap(err, "[verifyAccessToken] parse")
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("[verifyAccessToken] invalid token")
	}
	return claims.Subject, nil
}
