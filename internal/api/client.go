// Package api is the credential-bearing HTTP client for the chat backend's
// REST endpoints. Credentials are cookies: every request shares one jar, and
// the same jar is handed to the real-time channel dialer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxBodySize caps response bodies unless WithMaxBodySize says otherwise.
// Backlogs of busy rooms run to several megabytes.
const DefaultMaxBodySize = 16 << 20

// ErrResponseTooLarge is returned when a response body exceeds the client's
// limit. The body is never decoded in that case.
var ErrResponseTooLarge = errors.New("response body too large")

// RequestIDHeader carries a per-request uuid so backend logs can be matched
// with client logs.
const RequestIDHeader = "X-Request-ID"

// StatusError is returned for any non-2xx response. Body holds the trimmed
// response text, which for this backend is usually {"message": "..."}.
type StatusError struct {
	Op         string // operation name, e.g. "login"
	StatusCode int
	Body       string
}

// Error reports the operation, the status and the body when there is one.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// Client talks to one backend. It is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	jar     http.CookieJar
	maxBody int64
	log     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxBodySize sets the largest response body the Client will read.
// Non-positive values keep the default.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// New creates a Client for baseURL with a fresh cookie jar.
func New(baseURL string, timeout time.Duration, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Jar: jar},
		jar:     jar,
		maxBody: DefaultMaxBodySize,
		log:     logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Jar returns the cookie jar holding the session credentials.
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// BaseURL returns the backend base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

// do executes req and returns the response body. Non-2xx responses become
// a *StatusError.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// One byte past the limit tells a full body from a cut-off one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	if int64(len(body)) > c.maxBody {
		c.log.Warn().
			Str("op", op).
			Str("request_id", req.Header.Get(RequestIDHeader)).
			Int64("limit", c.maxBody).
			Msg("response body over limit")
		return nil, fmt.Errorf("%s: %w: more than %d bytes", op, ErrResponseTooLarge, c.maxBody)
	}

	c.log.Debug().
		Str("op", op).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", req.Header.Get(RequestIDHeader)).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
