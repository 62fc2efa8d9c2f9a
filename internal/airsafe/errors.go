package airsafe

import (
	"fmt"
	"net/http"
)

// AuthorizationError is returned when the API rejects the token (HTTP 401).
// It is never retried.
type AuthorizationError struct {
	Endpoint string
	Body     string
}

func (e *AuthorizationError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unauthorized: %s", e.Endpoint, e.Body)
	}
	return fmt.Sprintf("%s: unauthorized", e.Endpoint)
}

// TransportError is returned for network failures and unexpected HTTP
// statuses. It is never retried.
type TransportError struct {
	Endpoint   string
	StatusCode int // 0 for network-level failures.
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
