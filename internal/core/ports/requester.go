package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes one API call. Path is relative to the configured base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded unless it is already a []byte.
	Body   any
	Header http.Header
	// Token is sent as a bearer credential when non-empty.
	Token string
}

// Response is the success half of a request result.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Requester performs a request. Failures are returned as *domain.APIError.
type Requester interface {
	Do(ctx context.Context, req Request) (*Response, error)
}
