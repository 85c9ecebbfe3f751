package marketpersist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "qtcache/internal/cache"
	"qtcache/internal/persistence/engine"
	"qtcache/pkg/market"
)

// Policy selects how SymbolStore.Get treats the local cache.
type Policy int

const (
	// PreferCache returns the stored record and fetches only on a miss.
	PreferCache Policy = iota
	// ForceRefresh always fetches and overwrites the stored record.
	ForceRefresh
	// CacheOnly never calls upstream; a miss is market.ErrNotFound.
	CacheOnly
)

// ParsePolicy accepts prefer, force and cache (empty means prefer).
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "prefer", "prefer_cache":
		return PreferCache, nil
	case "force", "force_refresh", "refresh":
		return ForceRefresh, nil
	case "cache", "cache_only":
		return CacheOnly, nil
	default:
		return PreferCache, fmt.Errorf("%w: unknown symbol policy %q", market.ErrValidation, raw)
	}
}

func (p Policy) String() string {
	switch p {
	case PreferCache:
		return "prefer"
	case ForceRefresh:
		return "force"
	case CacheOnly:
		return "cache"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// SymbolStoreConfig enumerates the symbol store collaborators. Cache is
// optional.
type SymbolStoreConfig struct {
	Engine    *engine.Engine
	Gateway   market.Gateway
	Cache     gocache.Cache
	TTL       cachekeys.TTLSet
	RateLimit time.Duration
	Now       func() time.Time
}

// SymbolStore keeps one metadata record per ticker.
type SymbolStore struct {
	engine    *engine.Engine
	gateway   market.Gateway
	cache     gocache.Cache
	ttl       cachekeys.TTLSet
	rateLimit time.Duration
	now       func() time.Time
}

// NewSymbolStore wires a symbol store over an initialized engine.
func NewSymbolStore(cfg SymbolStoreConfig) (*SymbolStore, error) {
	if cfg.Engine == nil {
		return nil, errors.New("marketpersist: symbol store requires an engine")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SymbolStore{
		engine:    cfg.Engine,
		gateway:   cfg.Gateway,
		cache:     cfg.Cache,
		ttl:       cfg.TTL,
		rateLimit: cfg.RateLimit,
		now:       now,
	}, nil
}

// Get returns the record for symbol according to policy.
func (s *SymbolStore) Get(ctx context.Context, symbol string, policy Policy) (*market.Symbol, error) {
	key := market.NormalizeSymbol(symbol)
	if key == "" {
		return nil, fmt.Errorf("%w: symbol is empty", market.ErrValidation)
	}
	switch policy {
	case PreferCache, CacheOnly:
		rec, err := s.lookup(ctx, key)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, market.ErrNotFound) || policy == CacheOnly {
			return nil, err
		}
	case ForceRefresh:
	default:
		return nil, fmt.Errorf("%w: unknown symbol policy %d", market.ErrValidation, int(policy))
	}
	return s.refresh(ctx, key)
}

// GetAll returns every stored record ordered by symbol without calling
// upstream.
func (s *SymbolStore) GetAll(ctx context.Context) ([]market.Symbol, error) {
	var rows []engine.SymbolRow
	query := "SELECT " + engine.SymbolColumns + " FROM symbols ORDER BY symbol"
	if err := s.engine.Conn().QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("marketpersist: list symbols: %w", err)
	}
	out := make([]market.Symbol, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeSymbolRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Symbols returns the tracked tickers in sorted order.
func (s *SymbolStore) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := s.engine.Conn().QueryRowsCtx(ctx, &symbols, "SELECT symbol FROM symbols ORDER BY symbol"); err != nil {
		return nil, fmt.Errorf("marketpersist: list tracked symbols: %w", err)
	}
	return symbols, nil
}

func (s *SymbolStore) lookup(ctx context.Context, key string) (*market.Symbol, error) {
	if s.cache != nil {
		var rec market.Symbol
		err := s.cache.TakeCtx(ctx, &rec, cachekeys.SymbolKey(key), func(val any) error {
			loaded, err := s.load(ctx, key)
			if err != nil {
				return err
			}
			*val.(*market.Symbol) = *loaded
			return nil
		})
		switch {
		case err == nil:
			return &rec, nil
		case s.cache.IsNotFound(err) || errors.Is(err, sqlx.ErrNotFound):
			return nil, fmt.Errorf("%w: symbol %s is not cached", market.ErrNotFound, key)
		default:
			logx.WithContext(ctx).Errorf("marketpersist: symbol cache key=%s err=%v", cachekeys.SymbolKey(key), err)
		}
	}
	rec, err := s.load(ctx, key)
	if errors.Is(err, sqlx.ErrNotFound) {
		return nil, fmt.Errorf("%w: symbol %s is not cached", market.ErrNotFound, key)
	}
	return rec, err
}

func (s *SymbolStore) load(ctx context.Context, key string) (*market.Symbol, error) {
	var row engine.SymbolRow
	query := s.engine.Rebind("SELECT " + engine.SymbolColumns + " FROM symbols WHERE symbol = ?")
	if err := s.engine.Conn().QueryRowCtx(ctx, &row, query, key); err != nil {
		if errors.Is(err, sqlx.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("marketpersist: load symbol %s: %w", key, err)
	}
	return decodeSymbolRow(row)
}

func (s *SymbolStore) refresh(ctx context.Context, key string) (*market.Symbol, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("marketpersist: no gateway configured to fetch %s", key)
	}
	rec, err := s.gateway.SymbolDetail(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("marketpersist: fetch symbol %s: %w", key, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec = rec.Clone()
	rec.Symbol = key
	if err := s.upsert(ctx, rec); err != nil {
		return nil, err
	}
	s.cacheSymbol(ctx, rec)
	return rec.Clone(), nil
}

// upsert writes rec in one transaction and moves LastRefreshed to the stored
// value, which never goes backwards.
func (s *SymbolStore) upsert(ctx context.Context, rec *market.Symbol) error {
	nowMs := s.now().UnixMilli()
	rec.LastRefreshed = time.UnixMilli(nowMs).UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marketpersist: encode symbol %s: %w", rec.Symbol, err)
	}
	stmt := s.engine.Rebind(`
INSERT INTO symbols (symbol, symbol_id, data, last_refreshed_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT (symbol) DO UPDATE SET
    symbol_id = excluded.symbol_id,
    data = excluded.data,
    last_refreshed_ms = ` + s.engine.Greatest("symbols.last_refreshed_ms", "excluded.last_refreshed_ms"))
	var stored int64
	err = s.engine.Transact(ctx, func(ctx context.Context, session sqlx.Session) error {
		if _, err := session.ExecCtx(ctx, stmt, rec.Symbol, rec.SymbolID, string(data), nowMs); err != nil {
			return err
		}
		return session.QueryRowCtx(ctx, &stored, s.engine.Rebind("SELECT last_refreshed_ms FROM symbols WHERE symbol = ?"), rec.Symbol)
	})
	if err != nil {
		return fmt.Errorf("marketpersist: upsert symbol %s: %w", rec.Symbol, err)
	}
	rec.LastRefreshed = time.UnixMilli(stored).UTC()
	return nil
}

func (s *SymbolStore) cacheSymbol(ctx context.Context, rec *market.Symbol) {
	if s.cache == nil {
		return
	}
	key := cachekeys.SymbolKey(rec.Symbol)
	ttl := cachekeys.SymbolTTL(s.ttl)
	if ttl <= 0 {
		if err := s.cache.DelCtx(ctx, key); err != nil {
			logx.WithContext(ctx).Errorf("marketpersist: del symbol cache key=%s err=%v", key, err)
		}
		return
	}
	if err := s.cache.SetWithExpireCtx(ctx, key, rec, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: set symbol cache key=%s err=%v", key, err)
	}
}

func decodeSymbolRow(row engine.SymbolRow) (*market.Symbol, error) {
	var rec market.Symbol
	if err := json.Unmarshal([]byte(row.Data), &rec); err != nil {
		return nil, fmt.Errorf("marketpersist: decode symbol %s: %w", row.Symbol, err)
	}
	rec.Symbol = row.Symbol
	rec.SymbolID = row.SymbolID
	rec.LastRefreshed = time.UnixMilli(row.LastRefreshedMs).UTC()
	return &rec, nil
}
