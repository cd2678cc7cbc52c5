package session_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-portal-session/credstore"
	"github.com/jrsteele09/go-portal-session/internal/errors"
	"github.com/jrsteele09/go-portal-session/session"
	"github.com/jrsteele09/go-portal-session/users"
)

const (
	testAccessToken  = "access-token-1"
	testRefreshToken = "refresh-token-1"
)

type testFixture struct {
	repo    *credstore.InMemoryRepo
	manager *session.Manager
	now     time.Time
	nowFunc func() time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		repo: credstore.NewInMemoryRepo(),
		now:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.nowFunc = func() time.Time { return f.now }

	manager, err := session.NewManager(f.repo, session.WithNowTime(f.nowFunc))
	require.NoError(t, err)
	f.manager = manager
	return f
}

func testUser() *users.User {
	return &users.User{
		ID:       "user-1",
		Username: "alice",
		Email:    "alice@example.com",
		Role:     users.RoleUser,
		Verified: true,
		Active:   true,
	}
}

func (f *testFixture) tokens(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  testAccessToken,
		TokenType:    "Bearer",
		RefreshToken: testRefreshToken,
		Expiry:       expiry,
	}
}

func TestNewManagerRequiresRepo(t *testing.T) {
	_, err := session.NewManager(nil)
	require.Error(t, err)
}

func TestSetAndGetSession(t *testing.T) {
	f := setupTestFixture(t)

	expiry := f.now.Add(time.Hour)
	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(expiry)))

	s := f.manager.GetSession()
	require.NotNil(t, s)
	require.Equal(t, "alice@example.com", s.User.Email)
	require.Equal(t, testAccessToken, s.Tokens.AccessToken)
	require.True(t, expiry.Equal(s.ExpiresAt))
	require.True(t, f.manager.IsValid())
}

func TestSetSessionRequiresUserAndToken(t *testing.T) {
	f := setupTestFixture(t)

	require.Error(t, f.manager.SetSession(nil, f.tokens(f.now.Add(time.Hour))))
	require.Error(t, f.manager.SetSession(testUser(), nil))
	require.Error(t, f.manager.SetSession(testUser(), &oauth2.Token{Expiry: f.now.Add(time.Hour)}))
}

func TestGetSessionLazyExpiry(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	// Advance past expiry; the expired session is cleared on read
	f.now = f.now.Add(2 * time.Hour)
	require.Nil(t, f.manager.GetSession())
	require.False(t, f.manager.IsValid())
	require.Empty(t, f.manager.AccessToken())
	require.Nil(t, f.manager.User())

	// Persisted entries are gone too
	_, err := f.repo.Get(credstore.SessionKey)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRehydrationFromStore(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	// A second manager over the same store picks the session up
	rehydrated, err := session.NewManager(f.repo, session.WithNowTime(f.nowFunc))
	require.NoError(t, err)

	s := rehydrated.GetSession()
	require.NotNil(t, s)
	require.Equal(t, "alice@example.com", s.User.Email)
	require.Equal(t, testAccessToken, s.Tokens.AccessToken)
	require.Equal(t, testRefreshToken, s.Tokens.RefreshToken)
}

func TestRehydrationMalformedDataClearsStore(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.repo.Set(credstore.SessionKey, []byte("not json"), time.Hour))
	require.NoError(t, f.repo.Set(credstore.RefreshTokenKey, []byte("stale"), time.Hour))

	manager, err := session.NewManager(f.repo, session.WithNowTime(f.nowFunc))
	require.NoError(t, err)
	require.Nil(t, manager.GetSession())

	_, err = f.repo.Get(credstore.SessionKey)
	require.ErrorIs(t, err, errors.ErrNotFound)
	_, err = f.repo.Get(credstore.RefreshTokenKey)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRehydrationPartialRecordClearsStore(t *testing.T) {
	f := setupTestFixture(t)
	// Shaped like a record but missing the access token
	require.NoError(t, f.repo.Set(credstore.SessionKey, []byte(`{"user":{"id":"user-1"},"expires_at":"2025-06-01T13:00:00Z"}`), time.Hour))

	manager, err := session.NewManager(f.repo, session.WithNowTime(f.nowFunc))
	require.NoError(t, err)
	require.Nil(t, manager.GetSession())
}

func TestClearSessionIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	f.manager.ClearSession()
	f.manager.ClearSession()

	require.Nil(t, f.manager.GetSession())
	require.Empty(t, f.manager.RefreshToken())
}

func TestShouldRefreshWindow(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	// Well before the threshold window
	require.False(t, f.manager.ShouldRefresh())

	// Inside the window (default threshold 5 minutes)
	f.now = f.now.Add(56 * time.Minute)
	require.True(t, f.manager.ShouldRefresh())
	require.True(t, f.manager.IsValid())

	// Past expiry the session no longer needs refresh, it is gone
	f.now = f.now.Add(10 * time.Minute)
	require.False(t, f.manager.ShouldRefresh())
}

func TestUpdateTokensRetainsUser(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	newExpiry := f.now.Add(3 * time.Hour)
	require.NoError(t, f.manager.UpdateTokens(&oauth2.Token{
		AccessToken:  "access-token-2",
		RefreshToken: "refresh-token-2",
		Expiry:       newExpiry,
	}))

	s := f.manager.GetSession()
	require.NotNil(t, s)
	require.Equal(t, "alice@example.com", s.User.Email)
	require.Equal(t, "access-token-2", s.Tokens.AccessToken)
	require.True(t, newExpiry.Equal(s.ExpiresAt))
	require.Equal(t, "refresh-token-2", f.manager.RefreshToken())
}

func TestUpdateTokensWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.UpdateTokens(f.tokens(f.now.Add(time.Hour)))
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestUpdateUserRetainsTokens(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	updated := testUser()
	updated.Username = "alice-renamed"
	require.NoError(t, f.manager.UpdateUser(updated))

	s := f.manager.GetSession()
	require.Equal(t, "alice-renamed", s.User.Username)
	require.Equal(t, testAccessToken, s.Tokens.AccessToken)
}

func TestUpdateUserWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	require.ErrorIs(t, f.manager.UpdateUser(testUser()), errors.ErrSessionNotFound)
}

func TestRefreshTokenOutlivesAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	// Past access-token expiry the refresh token is still readable, so a
	// refresh can be attempted
	f.now = f.now.Add(2 * time.Hour)
	require.Nil(t, f.manager.GetSession())
	require.Equal(t, testRefreshToken, f.manager.RefreshToken())
}

func TestExpiryFallsBackToJWTClaim(t *testing.T) {
	f := setupTestFixture(t)

	claimExpiry := f.now.Add(45 * time.Minute)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(claimExpiry),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	require.NoError(t, f.manager.SetSession(testUser(), &oauth2.Token{AccessToken: raw}))

	s := f.manager.GetSession()
	require.NotNil(t, s)
	require.Equal(t, claimExpiry.Unix(), s.ExpiresAt.Unix())
}

func TestExpiryMissingEverywhereFails(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.SetSession(testUser(), &oauth2.Token{AccessToken: "opaque-token"})
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	f := setupTestFixture(t)
	require.Nil(t, f.manager.Info())

	require.NoError(t, f.manager.SetSession(testUser(), f.tokens(f.now.Add(time.Hour))))

	info := f.manager.Info()
	require.NotNil(t, info)
	require.Equal(t, "alice@example.com", info.User.Email)
	require.True(t, info.IsValid)
	require.False(t, info.ShouldRefresh)
	require.Equal(t, time.Hour, info.TimeUntilExpiry)
}
