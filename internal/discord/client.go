// Package discord is a small typed client for the parts of the Discord REST
// API this service talks to.
//
// Two auth modes are supported:
//   - Bot:    "Authorization: Bot <token>" for everything done as the bot
//   - Bearer: "Authorization: Bearer <token>" for calls made on behalf of a
//     user who completed the OAuth flow
//
// Every call is a single attempt. Non-2xx responses come back as *APIError
// carrying Discord's status and body so handlers can forward them untouched.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// Config holds the settings needed to build a Client.
type Config struct {
	BaseURL      string // e.g. "https://discord.com/api"
	Version      string // e.g. "v10"
	BotToken     string
	ClientID     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// APIError is a non-2xx response from Discord.
type APIError struct {
	Status int
	Body   []byte
	Route  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord: %s returned status %d: %s", e.Route, e.Status, bytes.TrimSpace(e.Body))
}

// StatusOf returns the HTTP status of an *APIError anywhere in err's chain.
func StatusOf(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}

// IsTimeout reports whether err came from a call that ran out of time.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Client calls the Discord REST API.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	botID snowflake.ID
}

// NewClient creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Client{http: httpClient, cfg: cfg, logger: logger}
}

// HTTPClient returns the underlying *http.Client, so the OAuth exchange can
// share its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// ReadTimeout is the timeout applied to read-only calls.
func (c *Client) ReadTimeout() time.Duration {
	return c.cfg.ReadTimeout
}

// WriteTimeout is the timeout applied to mutating calls.
func (c *Client) WriteTimeout() time.Duration {
	return c.cfg.WriteTimeout
}

func (c *Client) endpoint(path string) string {
	return c.cfg.BaseURL + "/" + c.cfg.Version + path
}

func (c *Client) botAuth() string {
	return "Bot " + c.cfg.BotToken
}

func bearerAuth(token string) string {
	return "Bearer " + token
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
// route is a low-cardinality label such as "GET /guilds/{id}/roles".
func (c *Client) do(ctx context.Context, method, route, url, auth string, body, out any) (int, error) {
	timeout := c.cfg.ReadTimeout
	if method != http.MethodGet {
		timeout = c.cfg.WriteTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("discord: encoding %s body: %w", route, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("discord: building %s request: %w", route, err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe(route, "error", start)
		return 0, fmt.Errorf("discord: %s: %w", route, err)
	}
	defer resp.Body.Close()
	observe(route, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("discord call failed",
			slog.String("route", route),
			slog.Int("status", resp.StatusCode),
		)
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Body: raw, Route: route}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("discord: decoding %s response: %w", route, err)
		}
	}
	return resp.StatusCode, nil
}
