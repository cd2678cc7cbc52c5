package api

import "fmt"

// Error codes for transport-level failures (no HTTP status available)
const (
	CodeNetwork = "network_error"
	CodeTimeout = "timeout"
)

// Error is the uniform error shape every failed API call resolves to.
// Status is 0 for transport-level failures (connection refused, timeout).
type Error struct {
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	URL     string      `json:"url,omitempty"`
	Method  string      `json:"method,omitempty"`
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Message)
}

// IsUnauthorized reports whether the error is an HTTP 401
func (e *Error) IsUnauthorized() bool {
	return e.Status == 401
}

// errorResponse is the wire shape of API error bodies (Django-style backend)
type errorResponse struct {
	Detail string `json:"detail"`
}
