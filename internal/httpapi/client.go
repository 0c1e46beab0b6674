// Package httpapi provides the JSON-over-HTTP plumbing shared by the
// provider clients. It owns request construction, header handling and the
// structured decoding of error bodies.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/songgen/internal/metrics"
)

// HTTP headers.
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	ContentTypeJSON     = "application/json"
)

const maxErrorBody = 4096

// StatusError is returned for any non-2xx response. Body holds the raw
// response text so diagnostics are never lost.
type StatusError struct {
	StatusCode int
	Status     string
	Detail     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("service returned %s: %s", e.Status, e.Detail)
	}

	return fmt.Sprintf("service returned %s, body: %s", e.Status, e.Body)
}

// errorResponse covers the error shapes used by the upstream services.
type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithProvider sets the label used for request metrics.
func WithProvider(name string) Option {
	return func(c *Client) {
		c.provider = name
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client issues JSON requests against a single base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    http.Header
	provider   string
}

// New creates a client for baseURL. The timeout applies to every request.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    make(http.Header),
		provider:   "http",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the base URL with any trailing slash removed.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path and query onto the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}

// GetJSON issues a GET against path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.DoJSON(ctx, http.MethodGet, c.URL(path, query), nil, out)
}

// PostJSON marshals body, POSTs it to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPost, c.URL(path, nil), body, out)
}

// DoJSON sends a request to an absolute URL and decodes a JSON response. A
// nil out discards the body. An out of type *json.RawMessage receives the
// body verbatim.
func (c *Client) DoJSON(ctx context.Context, method, rawURL string, body, out any) error {
	resp, err := c.Do(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}

	if out == nil {
		return nil
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}

	return nil
}

// Do sends a request and returns the response when its status is 2xx. The
// caller must close the body. Any other status is turned into *StatusError.
func (c *Client) Do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, "error").Inc()

		return nil, fmt.Errorf("failed to send request to %s: %w", rawURL, err)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(c.provider, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		return nil, ParseErrorResponse(resp)
	}

	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	if body != nil {
		req.Header.Set(HeaderContentType, ContentTypeJSON)
	}

	if req.Header.Get(HeaderAccept) == "" {
		req.Header.Set(HeaderAccept, ContentTypeJSON)
	}

	return req, nil
}

// ParseErrorResponse builds a *StatusError from a failed response, decoding
// a structured error body when one is present.
func ParseErrorResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(data),
	}

	var decoded errorResponse

	if json.Unmarshal(data, &decoded) == nil {
		statusErr.Detail = decoded.detail()
	}

	return statusErr
}

func (e errorResponse) detail() string {
	if len(e.Detail) > 0 {
		var text string
		if json.Unmarshal(e.Detail, &text) == nil {
			return text
		}

		return string(e.Detail)
	}

	if e.Error != "" {
		return e.Error
	}

	return e.Message
}
