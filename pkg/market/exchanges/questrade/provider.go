package questrade

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/pkg/market"
)

const defaultProviderTimeout = 15 * time.Second

// Provider wraps Questrade client calls behind the market.Gateway contract.
type Provider struct {
	client     *Client
	timeout    time.Duration
	providerID string

	idsMu sync.RWMutex
	ids   map[string]int64
}

type providerConfig struct {
	timeout      time.Duration
	client       *Client
	clientConfig []Option
}

// ProviderOption customises the Questrade provider.
type ProviderOption func(*providerConfig)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(cfg *providerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithClientOptions passes options to the underlying client.
func WithClientOptions(options ...Option) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.clientConfig = append(cfg.clientConfig, options...)
	}
}

// WithClient uses an already constructed client; client options are ignored.
func WithClient(c *Client) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.client = c
	}
}

// NewProvider constructs a Questrade gateway.
func NewProvider(opts ...ProviderOption) *Provider {
	cfg := &providerConfig{
		timeout: defaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client := cfg.client
	if client == nil {
		client = NewClient(cfg.clientConfig...)
	}
	return &Provider{
		client:  client,
		timeout: cfg.timeout,
		ids:     make(map[string]int64),
	}
}

func init() {
	market.RegisterProvider("questrade", func(name string, cfg *market.ProviderConfig) (market.Gateway, error) {
		opts := []ProviderOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		httpClient := &http.Client{Timeout: defaultHTTPTimeout}
		if cfg.HTTPTimeout > 0 {
			httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
		}
		loginURL := cfg.LoginURL
		if loginURL == "" && cfg.Practice {
			loginURL = practiceLoginURL
		}
		tokens := NewTokenSource(cfg.TokenFile, loginURL, cfg.RefreshToken, httpClient)
		clientOptions := []Option{WithHTTPClient(httpClient), WithTokenSource(tokens)}
		if cfg.MaxRetries > 0 {
			clientOptions = append(clientOptions, WithMaxRetries(cfg.MaxRetries))
		}
		opts = append(opts, WithClientOptions(clientOptions...))
		provider := NewProvider(opts...)
		provider.providerID = name
		return provider, nil
	})
}

// Client exposes the underlying API client for account and quote calls.
func (p *Provider) Client() *Client {
	return p.client
}

// SymbolDetail implements market.Gateway: an exact-match prefix search
// followed by a detail lookup by symbol id.
func (p *Provider) SymbolDetail(ctx context.Context, symbol string) (*market.Symbol, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	id, err := p.lookupID(callCtx, symbol)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	detail, err := p.client.SymbolByID(callCtx, id)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	rec := detail.toSymbol()
	if rec.Symbol == "" {
		rec.Symbol = market.NormalizeSymbol(symbol)
	}
	return rec, nil
}

// Candles implements market.Gateway. The configured timeout applies to each
// request window, so a long backfill is not cut off by a single deadline.
func (p *Provider) Candles(ctx context.Context, symbol string, interval market.Interval, start, end time.Time) ([]market.Candle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %q", market.ErrValidation, interval)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: candle range end %s is not after start %s", market.ErrValidation, end, start)
	}

	id, ok := p.cachedID(symbol)
	if !ok {
		callCtx, cancel := p.withTimeout(ctx)
		var err error
		id, err = p.lookupID(callCtx, symbol)
		cancel()
		if err != nil {
			return nil, p.classify(ctx, err)
		}
	}

	var candles []market.Candle
	for _, w := range candleWindows(interval, start, end) {
		callCtx, cancel := p.withTimeout(ctx)
		batch, err := p.client.GetCandles(callCtx, id, interval, w[0], w[1])
		cancel()
		if err != nil {
			return nil, p.classify(ctx, err)
		}
		candles = append(candles, batch...)
	}
	candles = dedupeCandles(candles)

	key := market.NormalizeSymbol(symbol)
	for i := range candles {
		candles[i].Symbol = key
	}
	logx.WithContext(ctx).Debugf("questrade: provider=%s symbol=%s interval=%s candles=%d", p.providerName(), key, interval, len(candles))
	return candles, nil
}

// RememberSymbolID seeds the ticker to id index, skipping a search round trip.
func (p *Provider) RememberSymbolID(symbol string, id int64) {
	key := market.NormalizeSymbol(symbol)
	if key == "" || id <= 0 {
		return
	}
	p.idsMu.Lock()
	p.ids[key] = id
	p.idsMu.Unlock()
}

func (p *Provider) lookupID(ctx context.Context, symbol string) (int64, error) {
	key := market.NormalizeSymbol(symbol)
	if key == "" {
		return 0, fmt.Errorf("%w: symbol is empty", market.ErrValidation)
	}
	if id, ok := p.cachedID(key); ok {
		return id, nil
	}
	results, err := p.client.SearchSymbols(ctx, key, 0)
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		if strings.EqualFold(strings.TrimSpace(r.Symbol), key) && r.SymbolID > 0 {
			p.RememberSymbolID(key, r.SymbolID)
			return r.SymbolID, nil
		}
	}
	return 0, fmt.Errorf("%w: questrade: symbol %s", market.ErrNotFound, key)
}

func (p *Provider) cachedID(symbol string) (int64, bool) {
	p.idsMu.RLock()
	defer p.idsMu.RUnlock()
	id, ok := p.ids[market.NormalizeSymbol(symbol)]
	return id, ok
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, p.timeout)
}

// classify marks an expired per-call deadline as transient. Cancellation or
// expiry of the caller's own context is returned unchanged.
func (p *Provider) classify(parent context.Context, err error) error {
	if err == nil || parent.Err() != nil || errors.Is(err, market.ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: questrade: provider=%s call exceeded %s: %w", market.ErrTransient, p.providerName(), p.timeout, err)
	}
	return err
}

func (p *Provider) providerName() string {
	if strings.TrimSpace(p.providerID) != "" {
		return p.providerID
	}
	return "questrade"
}
