// Package client is the HTTP SDK for the adit gateway.
//
// A Client wraps one gateway base URL and exposes a typed method per
// route: object store access, streamed and detached calls, run records,
// environment and secret management, and the health report. Streamed
// call output arrives through a per-chunk callback decoding the
// gateway's newline-delimited JSON transport.
//
// Cancellation and deadlines come from the caller's context. The
// default HTTP client carries no timeout of its own because call
// streams stay open for the lifetime of the remote call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/justapithecus/adit/types"
)

// ErrMissingBaseURL indicates New was called without a gateway URL.
var ErrMissingBaseURL = errors.New("missing gateway base URL")

// Client talks to one adit gateway.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sets the bearer credential sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient overrides the default HTTP client. Callers that set a
// Timeout on it will sever long-lived call streams at that deadline.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// New constructs a gateway client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-success HTTP response from the gateway, carrying
// the machine-readable code and request id from the error body.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway error: status %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("gateway error: status %d (%s): %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the gateway error code back onto the matching sentinel,
// so errors.Is(err, types.ErrKeyNotFound) holds across the wire.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "env_not_found":
		return types.ErrEnvNotFound
	case "key_not_found":
		return types.ErrKeyNotFound
	case "access_denied":
		return types.ErrAccessDenied
	case "timeout":
		return types.ErrTimeout
	case "invocation_failed":
		return types.ErrInvocation
	default:
		return nil
	}
}

// RemoteError is a call failure reported in-band by a response stream.
type RemoteError struct {
	// Key is the call key the failure belongs to.
	Key string
	// Message is the remote error text.
	Message string
	// Traceback carries remote failure context when the gateway had
	// any.
	Traceback string
}

func (e *RemoteError) Error() string {
	if e.Key == "" {
		return e.Message
	}
	return fmt.Sprintf("call %s: %s", e.Key, e.Message)
}

// errorBody mirrors the gateway's unary error response shape.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// newRequest builds an HTTP request against the gateway with the
// bearer credential attached.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do executes a unary request and returns the raw body of a 2xx
// response. Non-success responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// doJSON executes a unary request and decodes the response body into
// out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	data, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// stream opens a request whose success response is consumed
// incrementally. The caller owns resp.Body on a nil error.
func (c *Client) stream(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read error response: %w", readErr)
		}
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return resp, nil
}

// decodeAPIError converts an error response body into *APIError,
// tolerating non-JSON bodies from intermediaries.
func decodeAPIError(status int, data []byte) error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" && body.Code == "" {
		return &APIError{
			Status:  status,
			Code:    "unknown",
			Message: strings.TrimSpace(string(data)),
		}
	}
	return &APIError{
		Status:    status,
		Code:      body.Code,
		Message:   body.Error,
		RequestID: body.RequestID,
	}
}
