package questrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"qtcache/pkg/market"
)

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond
)

// Client wraps access to the Questrade REST API.
type Client struct {
	httpClient *http.Client
	tokens     *TokenSource
	loginURL   string
	maxRetries int
	logger     *log.Logger
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client used for API and token calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLoginURL overrides the OAuth token endpoint.
func WithLoginURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.loginURL = u
		}
	}
}

// WithMaxRetries adjusts the retry budget for transient failures.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithLogger injects a custom logger (defaults to log.Default()).
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTokenSource supplies the token source. Without it the client builds
// one with no backing file.
func WithTokenSource(src *TokenSource) Option {
	return func(c *Client) {
		if src != nil {
			c.tokens = src
		}
	}
}

// NewClient constructs a Questrade API client.
func NewClient(opts ...Option) *Client {
	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	client := &Client{
		httpClient: httpClient,
		loginURL:   defaultLoginURL,
		maxRetries: defaultMaxRetries,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = httpClient
	}
	if client.logger == nil {
		client.logger = log.Default()
	}
	if client.tokens == nil {
		client.tokens = NewTokenSource("", client.loginURL, "", client.httpClient)
	}
	return client
}

// Tokens exposes the client's token source.
func (c *Client) Tokens() *TokenSource {
	return c.tokens
}

// doRequest issues an authorized GET against the token's api_server and
// decodes the JSON body into result. A 401 forces one token refresh; network
// errors, 429 and 5xx responses are retried with exponential backoff.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values, result interface{}) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	refreshed := false
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; {
		status, body, err := c.send(ctx, tok, path, query)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%w: questrade: GET %s: %v", market.ErrTransient, path, err)
		case status == http.StatusUnauthorized && !refreshed:
			refreshed = true
			c.logf("questrade: 401 on %s, refreshing token", path)
			tok, err = c.tokens.Refresh(ctx)
			if err != nil {
				return fmt.Errorf("questrade: refresh after 401: %w", err)
			}
			continue
		case status >= 200 && status < 300:
			if result != nil {
				if err := json.Unmarshal(body, result); err != nil {
					return fmt.Errorf("questrade: decode %s: %w", path, err)
				}
			}
			return nil
		default:
			apiErr := newAPIError(status, body)
			if !apiErr.Retryable() {
				return apiErr
			}
			lastErr = apiErr
		}

		attempt++
		if attempt > c.maxRetries {
			break
		}
		c.logf("questrade: retrying %s in %s (attempt %d/%d): %v", path, backoff, attempt, c.maxRetries, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	if lastErr != nil {
		if !errors.Is(lastErr, market.ErrTransient) {
			lastErr = fmt.Errorf("%w: %v", market.ErrTransient, lastErr)
		}
		return lastErr
	}
	return fmt.Errorf("%w: questrade: request failed without error detail", market.ErrTransient)
}

func (c *Client) send(ctx context.Context, tok *Token, path string, query url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tok.endpoint(path, query), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("questrade: build request: %w", err)
	}
	req.Header.Set("Authorization", tok.authorization())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// logf prints debug output when a logger is configured.
func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
