package client

import (
	"fmt"
	"net/http"
)

const maxErrBody = 512

// TransportError is a non-2xx reply from an upstream service. The body is
// kept for step logs.
type TransportError struct {
	Service string
	Status  int
	Body    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Status, e.Body)
}

// AuthError is a 401 or 403 from an upstream service. The failover executor
// retries it like any other error; the type only sharpens messages.
type AuthError struct {
	Service string
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s API rejected credentials (status %d)", e.Service, e.Status)
}

// apiError maps a non-2xx status to the matching error type.
func apiError(service string, status int, body string) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Service: service, Status: status}
	}
	if len(body) > maxErrBody {
		body = body[:maxErrBody] + "..."
	}
	return &TransportError{Service: service, Status: status, Body: body}
}
