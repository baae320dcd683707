package taskapi

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned by bearer-authenticated calls made before a
// successful Authenticate or after the token expired
var ErrNoToken = errors.New("no valid bearer token")

// AuthenticationError reports a failed login or a rejected bearer token
type AuthenticationError struct {
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RemoteFetchError reports a network failure or non-2xx response
type RemoteFetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// clientSide reports whether err is a 4xx answer from a reachable server.
// Those do not count against the circuit breaker.
func clientSide(err error) bool {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.StatusCode == 0 || (authErr.StatusCode >= 400 && authErr.StatusCode < 500)
	}
	var fetchErr *RemoteFetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode >= 400 && fetchErr.StatusCode < 500
	}
	return false
}
