package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scfet/notification-client/internal/logging"
)

// TokenSource yields the current bearer token. It is consulted on every
// request; "" means signed out and no Authorization header is sent.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Client is a thin HTTP client for the notification backend's REST API.
// It handles Bearer token authentication, JSON (de)serialization and
// error classification. It never retries.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = logging.Component(log, "api") }
}

// WithUnauthorizedHook invokes hook whenever an authenticated request is
// answered with 401. See UnauthorizedTransport.
func WithUnauthorizedHook(hook func()) Option {
	return func(c *Client) {
		c.httpClient.Transport = &UnauthorizedTransport{
			Base:           c.httpClient.Transport,
			OnUnauthorized: hook,
		}
	}
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. https://host/api).
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logging.Component(nil, "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root with no trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// request describes one call for do.
type request struct {
	op          string
	method      string
	path        string
	query       *Query
	body        io.Reader
	contentType string
}

func jsonRequest(op, method, path string, payload any) (request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("%s: marshaling request body: %w", op, err)
	}
	return request{
		op:          op,
		method:      method,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
	}, nil
}

// do is the core HTTP method that builds the request, handles auth,
// classifies failures and decodes JSON into result when non-nil.
func (c *Client) do(ctx context.Context, r request, result any) error {
	url := c.baseURL + r.path
	if r.query != nil && r.query.Len() > 0 {
		url += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, r.body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", r.op, err)
	}

	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("op", r.op).Debug("request failed")
		return &TransportError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: r.op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	c.log.WithFields(logrus.Fields{
		"op":      r.op,
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("request completed")

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Op: r.op, Message: errorMessage(respBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: r.op, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &MalformedResponseError{Op: r.op, Err: errors.New("empty body")}
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return &MalformedResponseError{Op: r.op, Err: err}
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body.
// ASP.NET answers with either {"message":...} envelopes or problem
// details ({"title":...,"detail":...}); anything else is used verbatim.
func errorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Detail != "":
			return envelope.Detail
		case envelope.Title != "":
			return envelope.Title
		}
	}
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "…"
	}
	return string(body)
}
