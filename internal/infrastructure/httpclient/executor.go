// Package httpclient performs single API calls against the school API and
// normalises every outcome into a response or a *domain.APIError.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/schoolms/portal-client/internal/api/metrics"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

const (
	defaultTimeout = 30 * time.Second
	// maxBodyBytes bounds how much of a response body is buffered.
	maxBodyBytes = 8 << 20

	headerRequestID = "X-Request-ID"
	contentTypeJSON = "application/json"
)

var tracer = otel.Tracer("github.com/schoolms/portal-client/internal/infrastructure/httpclient")

// Config captures the executor settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport overrides the HTTP transport; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// Executor performs exactly one HTTP request per Do call. It never retries.
type Executor struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewExecutor(cfg Config, log zerolog.Logger) *Executor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Executor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout, Transport: cfg.Transport},
		log:     log.With().Str("component", "executor").Logger(),
	}
}

// Do sends req. Non-2xx responses come back as *domain.APIError carrying the
// status and body; transport failures and timeouts as a network APIError.
func (e *Executor) Do(ctx context.Context, req ports.Request) (*ports.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := tracer.Start(ctx, method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := e.do(ctx, method, req)
	elapsed := time.Since(start)

	metrics.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	metrics.RequestsTotal.WithLabelValues(method, outcomeOf(resp, err)).Inc()

	evt := e.log.Debug().Str("method", method).Str("path", req.Path).Dur("elapsed", elapsed)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
		evt = evt.Int("status", resp.Status)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if status, ok := domain.StatusOf(err); ok {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			evt = evt.Int("status", status)
		}
		evt = evt.Err(err)
	}
	evt.Msg("api request")

	return resp, err
}

func (e *Executor) do(ctx context.Context, method string, req ports.Request) (*ports.Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, e.url(req), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	e.applyHeaders(httpReq, req)

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, domain.NewNetworkError(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewNetworkError(fmt.Errorf("read body: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, domain.NewStatusError(httpResp.StatusCode, raw)
	}
	return &ports.Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

func (e *Executor) url(req ports.Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := e.baseURL + path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// applyHeaders sets the JSON defaults on every request, bodiless ones
// included, then lets req.Header replace them.
func (e *Executor) applyHeaders(httpReq *http.Request, req ports.Request) {
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set(headerRequestID, uuid.NewString())
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	// Overrides win over defaults.
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(raw), nil
	}
}

func outcomeOf(resp *ports.Response, err error) string {
	if err == nil && resp != nil {
		return strconv.Itoa(resp.Status/100) + "xx"
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return strconv.Itoa(apiErr.Status/100) + "xx"
	}
	return "network_error"
}
