package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
	"github.com/expensly/authclient/internal/metrics"
)

const (
	defaultTimeout = 30 * time.Second

	msgTimeout       = "Request timed out"
	msgNetworkError  = "Network error occurred"
	msgRequestFailed = "Request failed"
)

// Config captures the settings for the transport client.
type Config struct {
	BaseURL string
	// Timeout bounds every request; defaults to 30s.
	Timeout time.Duration
	// Headers are merged over the JSON defaults.
	Headers map[string]string
	// Transport defaults to an otelhttp-wrapped http.DefaultTransport.
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

// Client issues JSON requests against the remote API. A Client is immutable:
// WithBearer returns a copy bound to a token, so one instance can be shared
// across goroutines.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	headers map[string]string
	bearer  string
	http    *http.Client
	log     zerolog.Logger
}

var _ ports.HTTPClient = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &Client{
		baseURL: base,
		timeout: timeout,
		headers: headers,
		http:    &http.Client{Transport: transport},
		log:     cfg.Logger,
	}, nil
}

// WithBearer returns a copy of c that authenticates with token. An empty
// token yields an unauthenticated copy.
func (c *Client) WithBearer(token string) *Client {
	cp := *c
	cp.bearer = token
	return &cp
}

// Bearer returns the token bound to c.
func (c *Client) Bearer() string {
	return c.bearer
}

func (c *Client) Get(ctx context.Context, path string, query map[string]any, out any) error {
	return c.Do(ctx, ports.APIRequest{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, ports.APIRequest{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, ports.APIRequest{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, ports.APIRequest{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, ports.APIRequest{Method: http.MethodDelete, Path: path}, out)
}

// Do sends req and decodes a successful JSON response into out (which may be
// nil). Every failure is a *domain.APIError.
func (c *Client) Do(ctx context.Context, req ports.APIRequest, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	status, err := c.do(ctx, method, req, out)

	metrics.ClientRequestsTotal.WithLabelValues(method, req.Path, strconv.Itoa(status)).Inc()
	metrics.ClientRequestDuration.WithLabelValues(method, req.Path).Observe(time.Since(start).Seconds())

	if err != nil {
		c.log.Debug().
			Err(err).
			Str("method", method).
			Str("path", req.Path).
			Int("status", status).
			Msg("api request failed")
	}
	return err
}

func (c *Client) do(ctx context.Context, method string, req ports.APIRequest, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return domain.StatusNetworkError, domain.NewAPIError(domain.StatusNetworkError, msgNetworkError, fmt.Errorf("encode body: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(req.Path, req.Query), body)
	if err != nil {
		return domain.StatusNetworkError, domain.NewAPIError(domain.StatusNetworkError, msgNetworkError, err)
	}
	for k, v := range c.buildHeaders(req) {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportFailure(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := domain.NewAPIError(resp.StatusCode, errorMessage(raw), nil)
		apiErr.Data = raw
		return resp.StatusCode, apiErr
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return domain.StatusNetworkError, domain.NewAPIError(domain.StatusNetworkError, msgNetworkError, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

// transportFailure classifies an error raised before a full response was read.
func (c *Client) transportFailure(ctx context.Context, err error) (int, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.StatusTimeout, domain.NewAPIError(domain.StatusTimeout, msgTimeout, err)
	}
	return domain.StatusNetworkError, domain.NewAPIError(domain.StatusNetworkError, msgNetworkError, err)
}

func (c *Client) buildURL(path string, query map[string]any) string {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		values := u.Query()
		for k, v := range query {
			if s, ok := queryValue(v); ok {
				values.Add(k, s)
			}
		}
		u.RawQuery = values.Encode()
	}
	return u.String()
}

func (c *Client) buildHeaders(req ports.APIRequest) map[string]string {
	headers := make(map[string]string, len(c.headers)+len(req.Header)+1)
	for k, v := range c.headers {
		headers[k] = v
	}
	for k, v := range req.Header {
		headers[k] = v
	}

	token := req.BearerToken
	if token == "" {
		token = c.bearer
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return headers
}

// queryValue stringifies v, reporting false for nil and nil pointers.
func queryValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	return fmt.Sprint(rv.Interface()), true
}

// errorMessage extracts "message" (or "error") from a JSON error body.
func errorMessage(raw []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return msgRequestFailed
	}
	switch {
	case strings.TrimSpace(envelope.Message) != "":
		return envelope.Message
	case strings.TrimSpace(envelope.Error) != "":
		return envelope.Error
	}
	return msgRequestFailed
}
