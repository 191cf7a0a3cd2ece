package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingAccessToken is the cause of an AuthRefreshError when the refresh
// endpoint answered 2xx without an access token.
var ErrMissingAccessToken = errors.New("refresh response did not contain an access token")

// NetworkError reports that no response was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError reports a response with status >= 400. Body holds the raw
// response payload.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	detail := strings.TrimSpace(string(e.Body))
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	if detail == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), detail)
}

// AuthRefreshError reports that the refresh sub-call failed. Err is the
// NetworkError, HTTPStatusError or decode failure of that call.
type AuthRefreshError struct {
	Err error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *AuthRefreshError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0. A refresh
// failure is not reported as the status of the refresh call.
func StatusCode(err error) int {
	var refreshErr *AuthRefreshError
	if errors.As(err, &refreshErr) {
		return 0
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the requested endpoint.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsSessionExpired reports whether err ended the session.
func IsSessionExpired(err error) bool {
	var refreshErr *AuthRefreshError
	return errors.As(err, &refreshErr)
}
