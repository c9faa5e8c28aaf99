package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthExpired        = errors.New("authentication expired")
	ErrForbidden          = errors.New("access forbidden")
	ErrNotFound           = errors.New("resource not found")
	ErrServerError        = errors.New("server error")
	ErrNetwork            = errors.New("network error")
	ErrRequestFailed      = errors.New("request failed")

	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrTwoFactorRequired  = errors.New("two-factor authentication required")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnsupportedBackend = errors.New("unsupported store backend")
)

// ErrorKind classifies a failed API call.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindAuthExpired        ErrorKind = "auth_expired"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not_found"
	KindServerError        ErrorKind = "server_error"
	KindNetwork            ErrorKind = "network_error"
	KindRequestFailed      ErrorKind = "request_failed"
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidCredentials: ErrInvalidCredentials,
	KindAuthExpired:        ErrAuthExpired,
	KindForbidden:          ErrForbidden,
	KindNotFound:           ErrNotFound,
	KindServerError:        ErrServerError,
	KindNetwork:            ErrNetwork,
	KindRequestFailed:      ErrRequestFailed,
}

// APIError is the failure half of a request result. Status is 0 when no
// response was received.
type APIError struct {
	Kind   ErrorKind
	Status int
	Body   []byte
	Cause  error
}

// NewStatusError classifies a non-2xx response.
func NewStatusError(status int, body []byte) *APIError {
	return &APIError{Kind: KindForStatus(status), Status: status, Body: body}
}

// NewNetworkError wraps a transport failure (no response, timeout).
func NewNetworkError(cause error) *APIError {
	return &APIError{Kind: KindNetwork, Cause: cause}
}

// KindForStatus maps an HTTP status to its error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServerError
	default:
		return KindRequestFailed
	}
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return string(e.Kind)
	}
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
}

// Unwrap exposes the kind sentinel and the transport cause.
func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Message extracts a human readable message from common error bodies
// ({"detail": ...}, {"message": ...}, {"error": ...}) or the raw body.
func (e *APIError) Message() string {
	if len(e.Body) == 0 {
		return ""
	}
	var envelope map[string]any
	if err := json.Unmarshal(e.Body, &envelope); err == nil {
		for _, field := range []string{"detail", "message", "error"} {
			if msg, ok := envelope[field].(string); ok && msg != "" {
				return msg
			}
		}
	}
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, if any.
func StatusOf(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status, true
	}
	return 0, false
}
