// Package client implements the sync server HTTP transport.
//
// OpenStream issues the start call and returns the text/event-stream body;
// CancelSync issues the out-of-band cancel call. Both authenticate with a
// bearer token and are keyed by the client-generated sync id.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pithecene-io/billsync/iox"
	"github.com/pithecene-io/billsync/session"
	"github.com/pithecene-io/billsync/types"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// Config configures the client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1 (required).
	BaseURL string
	// Token is the bearer token sent on every request.
	Token string
	// HTTPClient overrides the default client. It must not set an overall
	// Timeout, which would cut long-running streams short.
	HTTPClient *http.Client
	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// Client talks to the sync endpoints.
type Client struct {
	baseURL   string
	token     string
	http      *http.Client
	userAgent string
}

// New creates a client. Returns an error if the base URL is missing or invalid.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client requires a base URL")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q", u.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "billsync/" + types.Version
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		http:      httpClient,
		userAgent: userAgent,
	}, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	// Message is the server's explanation, when one could be extracted.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// StartURL returns the start endpoint for a sync.
func (c *Client) StartURL(propertyID, syncID string) string {
	return c.syncURL(propertyID, "", syncID)
}

// CancelURL returns the cancel endpoint for a sync.
func (c *Client) CancelURL(propertyID, syncID string) string {
	return c.syncURL(propertyID, "/cancel", syncID)
}

func (c *Client) syncURL(propertyID, suffix, syncID string) string {
	query := url.Values{"sync_id": {syncID}}
	return c.baseURL + "/suppliers/sync/" + url.PathEscape(propertyID) + suffix + "?" + query.Encode()
}

// OpenStream starts the sync and returns the streaming response body.
// The caller must close the body. Cancelling ctx aborts the stream.
func (c *Client) OpenStream(ctx context.Context, propertyID, syncID string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, c.StartURL(propertyID, syncID))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("start request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer iox.DrainClose(resp.Body)
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// CancelSync asks the server to stop the sync. The response body is ignored.
func (c *Client) CancelSync(ctx context.Context, propertyID, syncID string) error {
	req, err := c.newRequest(ctx, c.CancelURL(propertyID, syncID))
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// statusError builds a StatusError, taking the message from a JSON
// `detail` or `error` field, or a short plain-text body.
func statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
}

func errorMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, raw := range []json.RawMessage{payload.Detail, payload.Error} {
			var s string
			if len(raw) > 0 && json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
		return ""
	}

	text := strings.TrimSpace(string(body))
	if text == "" || strings.ContainsAny(text, "<\n") {
		return ""
	}
	return text
}

// Verify Client implements the session transport.
var _ session.Transport = (*Client)(nil)
