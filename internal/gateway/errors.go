package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSessionExpired is returned when a protected request was rejected and
// the credential could not be renewed. The Session has been cleared by the
// time a caller observes it.
var ErrSessionExpired = errors.New("session expired")

// HTTPError is a non-success response from the remote service.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message())
}

// Status returns the HTTP status and a message suitable for display.
func (e *HTTPError) Status() (int, string) {
	return e.StatusCode, e.Message()
}

// Message extracts the error message from a response body of the form
// {"message": "..."} or {"error": "..."}, falling back to the status text.
func (e *HTTPError) Message() string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(e.Body, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}

	if text := http.StatusText(e.StatusCode); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected response"
}

// NetworkError is a failure to obtain a usable response: transport errors,
// timeouts, cancellation and malformed response bodies.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
