package questrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qtcache/pkg/market"
)

const (
	defaultLoginURL  = "https://login.questrade.com/oauth2/token"
	practiceLoginURL = "https://practicelogin.questrade.com/oauth2/token"

	// tokens are refreshed slightly ahead of expires_at
	expirySkew = 30 * time.Second
)

// ErrNoRefreshToken is returned when neither the token file nor the
// configuration carries a refresh token.
var ErrNoRefreshToken = errors.New("questrade: no refresh token available")

// Token is the OAuth payload persisted between runs.
type Token struct {
	AccessToken   string  `json:"access_token"`
	TokenType     string  `json:"token_type"`
	ExpiresIn     int64   `json:"expires_in"`
	RefreshToken  string  `json:"refresh_token"`
	APIServer     string  `json:"api_server"`
	ExpiresAt     float64 `json:"expires_at"`
	TimeRefreshed string  `json:"time_refreshed,omitempty"`
}

// Expired reports whether the access token is missing or past its expiry.
func (t *Token) Expired(now time.Time) bool {
	if t == nil || t.AccessToken == "" || t.ExpiresAt <= 0 {
		return true
	}
	expiry := time.Unix(0, int64(t.ExpiresAt*float64(time.Second)))
	return !now.Add(expirySkew).Before(expiry)
}

func (t *Token) authorization() string {
	kind := strings.TrimSpace(t.TokenType)
	if kind == "" {
		kind = "Bearer"
	}
	return kind + " " + t.AccessToken
}

// endpoint joins the token's api_server with a relative API path.
func (t *Token) endpoint(path string, query url.Values) string {
	base := strings.TrimRight(t.APIServer, "/")
	u := base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// TokenSource hands out valid access tokens, refreshing and persisting them
// as needed. It is safe for concurrent use.
type TokenSource struct {
	mu           sync.Mutex
	path         string
	loginURL     string
	refreshToken string
	httpClient   *http.Client
	now          func() time.Time
	token        *Token
}

// NewTokenSource builds a token source backed by a JSON file. The bootstrap
// refresh token is used only when the file is absent or has none.
func NewTokenSource(path, loginURL, refreshToken string, hc *http.Client) *TokenSource {
	if strings.TrimSpace(loginURL) == "" {
		loginURL = defaultLoginURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &TokenSource{
		path:         path,
		loginURL:     loginURL,
		refreshToken: strings.TrimSpace(refreshToken),
		httpClient:   hc,
		now:          time.Now,
	}
}

// StaticTokenSource wraps an already valid token; refreshes still go to loginURL.
func StaticTokenSource(tok Token, loginURL string, hc *http.Client) *TokenSource {
	src := NewTokenSource("", loginURL, tok.RefreshToken, hc)
	src.token = &tok
	return src
}

// Token returns a valid token, loading it from disk or refreshing it first
// when it is missing or expired.
func (s *TokenSource) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		tok, err := s.load()
		if err != nil {
			return nil, err
		}
		s.token = tok
	}
	if s.token != nil && !s.token.Expired(s.now()) {
		copied := *s.token
		return &copied, nil
	}
	return s.refreshLocked(ctx)
}

// Refresh forces a token refresh regardless of expiry.
func (s *TokenSource) Refresh(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *TokenSource) refreshLocked(ctx context.Context) (*Token, error) {
	refresh := s.refreshToken
	if s.token != nil && s.token.RefreshToken != "" {
		refresh = s.token.RefreshToken
	}
	if refresh == "" {
		return nil, ErrNoRefreshToken
	}

	q := url.Values{}
	q.Set("grant_type", "refresh_token")
	q.Set("refresh_token", refresh)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.loginURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("questrade: build token request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: questrade: token refresh: %v", market.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: questrade: read token response: %v", market.ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("questrade: decode token: %w", err)
	}
	if tok.AccessToken == "" || tok.APIServer == "" {
		return nil, fmt.Errorf("questrade: token response missing access_token or api_server")
	}
	now := s.now()
	tok.TimeRefreshed = now.Format(time.RFC3339)
	tok.ExpiresAt = float64(now.Unix() + tok.ExpiresIn)
	if err := s.save(&tok); err != nil {
		return nil, err
	}
	s.token = &tok
	copied := tok
	return &copied, nil
}

func (s *TokenSource) load() (*Token, error) {
	if s.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("questrade: read token file: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("questrade: decode token file %s: %w", s.path, err)
	}
	return &tok, nil
}

func (s *TokenSource) save(tok *Token) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("questrade: create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "    ")
	if err != nil {
		return fmt.Errorf("questrade: encode token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("questrade: write token file: %w", err)
	}
	return nil
}
