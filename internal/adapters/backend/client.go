// Package backend is the HTTP client for the coach backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

// Backend routes.
const (
	LoginPath   = "/api/auth/login"
	ConfirmPath = "/api/coach/matches"
)

const (
	defaultTimeout  = 60 * time.Second
	maxResponseSize = 8 << 20
)

// Client calls the coach backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http = &http.Client{Timeout: d, Transport: cl.http.Transport}
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (model.Session, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return model.Session{}, fmt.Errorf("encode login: %w", err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	raw, err := c.do(ctx, "login", LoginPath, header, body)
	if err != nil {
		return model.Session{}, err
	}

	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return model.Session{}, fmt.Errorf("%w: decode login response: %w", ErrServer, err)
	}
	if !sess.Valid() {
		return model.Session{}, fmt.Errorf("%w: login response has no token", ErrServer)
	}
	return sess, nil
}

// ConfirmMatch posts a prepared multipart body. header carries credentials;
// the returned body is the backend's receipt, unchanged.
func (c *Client) ConfirmMatch(ctx context.Context, header http.Header, contentType string, body []byte) (json.RawMessage, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", contentType)
	raw, err := c.do(ctx, "confirm", ConfirmPath, h, body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (c *Client) do(ctx context.Context, call, path string, header http.Header, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(call, "error", float64(time.Since(start).Milliseconds()))
		metrics.RecordErrorByComponent("backend", call+"_transport")
		c.log.Error(ctx, "backend request failed", logger.String("call", call), logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}
	defer resp.Body.Close()
	metrics.RecordBackendRequest(call, strconv.Itoa(resp.StatusCode), float64(time.Since(start).Milliseconds()))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrServer, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := newStatusError(resp.StatusCode, raw)
		c.log.Warn(ctx, "backend rejected request",
			logger.String("call", call),
			logger.Int("status", resp.StatusCode),
			logger.String("message", serr.Message),
		)
		return nil, serr
	}
	return raw, nil
}
