package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies client-visible failures.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION_FAILED"
	KindAuthentication ErrorKind = "AUTHENTICATION_FAILED"
	KindNetwork        ErrorKind = "NETWORK_ERROR"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindServer         ErrorKind = "SERVER_ERROR"
)

// APIError standardizes failures surfaced by the client stores.
// Fields carries the backend's error body untouched: per-field
// validation maps, "error"/"detail"/"message" keys, whatever the
// server produced.
type APIError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Fields     map[string]any
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transport failure with a generic
// user-displayable message.
func NewNetworkError(err error) *APIError {
	return &APIError{
		Kind:    KindNetwork,
		Message: "Network error. Please try again.",
		Err:     err,
	}
}

// NewSessionExpired marks the authentication failure raised when a
// refresh attempt could not recover a 401.
func NewSessionExpired(err error) *APIError {
	return &APIError{
		Kind:       KindAuthentication,
		Message:    "Session expired. Please login again.",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

// FromResponse maps a non-2xx backend response to an APIError. The
// body is parsed as an opaque JSON object and passed through in
// Fields; the most specific of its error/detail/message keys becomes
// the displayable message.
func FromResponse(status int, body []byte) *APIError {
	kind := KindServer
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthentication
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 400 && status < 500:
		kind = KindValidation
	}

	apiErr := &APIError{
		Kind:       kind,
		Message:    http.StatusText(status),
		HTTPStatus: status,
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil && len(fields) > 0 {
		apiErr.Fields = fields
		for _, key := range []string{"error", "detail", "message"} {
			if msg, ok := fields[key].(string); ok && msg != "" {
				apiErr.Message = msg
				break
			}
		}
	}
	return apiErr
}

// ToAPIError converts generic errors to APIError.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewNetworkError(err)
}
