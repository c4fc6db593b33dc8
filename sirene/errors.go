package sirene

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidCredentials = errors.New("incorrect credentials")
	ErrTokenService       = errors.New("error during token retrieval")

	ErrBadRequest       = errors.New("invalid parameters in query")
	ErrUnauthorized     = errors.New("invalid bearer token")
	ErrNotFound         = errors.New("unknown siret")
	ErrNotAcceptable    = errors.New("invalid Accept header")
	ErrURITooLong       = errors.New("request URI too long")
	ErrServer           = errors.New("internal server error")
	ErrUnexpectedStatus = errors.New("unexpected status code")

	ErrCursorLoop  = errors.New("pagination cursor loop")
	ErrInvalidDate = errors.New("unrecognized date value, should be AAAA-MM-JJ")
)

// AuthError is returned when the client credentials exchange fails.
type AuthError struct {
	StatusCode  int
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Err, e.StatusCode, e.Description)
	}

	return fmt.Sprintf("%s (status %d)", e.Err, e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is a non retryable (or retry exhausted) answer from the API.
// Err is one of the status sentinels above.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func newAPIError(endpoint string, status int, message string) *APIError {
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: status,
		Message:    message,
		Err:        classifyStatus(status),
	}
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s request: %s (status %d)", e.Endpoint, e.Err, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func classifyStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusNotAcceptable:
		return ErrNotAcceptable
	case http.StatusRequestURITooLong:
		return ErrURITooLong
	case http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrUnexpectedStatus
	}
}

// MalformedResponseError reports a 200 answer missing an expected key.
type MalformedResponseError struct {
	Key string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("missing key in response from API: %s", e.Key)
}
