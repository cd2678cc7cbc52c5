// Package api is the REST client for the remote portal API. Responses are
// decoded into SDK types; every failure resolves to the normalized *Error
// shape, never a silently swallowed status.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-portal-session/users"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultRefreshTimeout = 10 * time.Second
)

// Client is the API client for the portal backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	// directClient bypasses any interceptor wired into httpClient. The
	// refresh endpoint must use it to avoid recursive interception.
	directClient *http.Client
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient sets the client used for authenticated calls, typically one
// whose Transport is the session interceptor
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRefreshTimeout bounds the direct refresh call
func WithRefreshTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.directClient = &http.Client{Timeout: d}
	}
}

// New creates a new API client with the given base URL
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		directClient: &http.Client{Timeout: defaultRefreshTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetHTTPClient swaps the authenticated client after construction. Needed
// because the interceptor wants the api client's Refresh while the api client
// wants the interceptor as transport.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// BaseURL returns the configured API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token bundle
func (c *Client) Login(ctx context.Context, email, password string) (*oauth2.Token, error) {
	var tr TokenResponse
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/login/", loginRequest{Email: email, Password: password}, &tr); err != nil {
		return nil, err
	}
	return tr.Token(time.Now()), nil
}

// Refresh exchanges a refresh token for a new token bundle. It runs on the
// direct client with a fixed timeout, never through the interceptor.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var tr TokenResponse
	if err := c.do(ctx, c.directClient, http.MethodPost, "/auth/refresh/", refreshRequest{Refresh: refreshToken}, &tr); err != nil {
		return nil, err
	}
	return tr.Token(time.Now()), nil
}

// Logout notifies the backend that the session is ending. Callers treat
// failures as best-effort.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/auth/logout/", nil, nil)
}

// Profile fetches the authenticated user's identity record
func (c *Client) Profile(ctx context.Context) (*users.User, error) {
	var user users.User
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/profile/", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProfileWithToken fetches the identity record with an explicit bearer token
// on the direct client. Used during login, before the session manager holds
// any token for the interceptor to attach.
func (c *Client) ProfileWithToken(ctx context.Context, accessToken string) (*users.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profile/", nil)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("build request: %v", err), URL: "/profile/", Method: http.MethodGet}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.directClient.Do(req)
	if err != nil {
		return nil, transportError(err, http.MethodGet, "/profile/")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp, http.MethodGet, "/profile/")
	}

	var user users.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, &Error{Message: fmt.Sprintf("decode response: %v", err), Status: resp.StatusCode, URL: "/profile/", Method: http.MethodGet}
	}
	return &user, nil
}

// UpdateProfile replaces mutable fields of the user's identity record
func (c *Client) UpdateProfile(ctx context.Context, user *users.User) (*users.User, error) {
	var updated users.User
	if err := c.do(ctx, c.httpClient, http.MethodPut, "/profile/", user, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Register creates a new portal account
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/auth/register/", registerRequest{Username: username, Email: email, Password: password}, nil)
}

// ForgotPassword requests a password-reset email
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/auth/forgot-password/", forgotPasswordRequest{Email: email}, nil)
}

// ResetPassword completes a password reset with the emailed token
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/auth/reset-password/", resetPasswordRequest{Token: token, Password: password}, nil)
}

// VerifyEmail confirms account ownership with the emailed token
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/auth/verify-email/", verifyEmailRequest{Token: token}, nil)
}

// ChangePassword rotates the authenticated user's password
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/auth/change-password/", changePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}, nil)
}

// do issues one request and decodes the response into out (when non-nil).
// Non-2xx statuses and transport failures both resolve to *Error.
func (c *Client) do(ctx context.Context, httpClient *http.Client, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Message: fmt.Sprintf("marshal request: %v", err), URL: path, Method: method}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &Error{Message: fmt.Sprintf("build request: %v", err), URL: path, Method: method}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(err, method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, method, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Message: fmt.Sprintf("decode response: %v", err), Status: resp.StatusCode, URL: path, Method: method}
	}
	return nil
}

// transportError normalizes a network-level failure (status 0)
func transportError(err error, method, path string) *Error {
	code := CodeNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = CodeTimeout
	}
	return &Error{
		Message: err.Error(),
		Status:  0,
		Code:    code,
		URL:     path,
		Method:  method,
	}
}

// decodeError normalizes a non-2xx response, preserving the backend's
// {"detail": ...} message when one is present
func decodeError(resp *http.Response, method, path string) *Error {
	apiErr := &Error{
		Message: http.StatusText(resp.StatusCode),
		Status:  resp.StatusCode,
		URL:     path,
		Method:  method,
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var body errorResponse
	if json.Unmarshal(data, &body) == nil && body.Detail != "" {
		apiErr.Message = body.Detail
		apiErr.Data = body.Detail
	}
	return apiErr
}
