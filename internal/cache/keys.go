package cache

import (
	"strings"
	"time"

	"qtcache/internal/config"
)

// Namespace is the Redis key prefix for the qtcache application.
const Namespace = "qtcache"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, time.Hour),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// SymbolKey caches a full symbol record.
func SymbolKey(symbol string) string {
	return formatKey("symbol", strings.ToUpper(symbol))
}

// PriceLatestKey caches the close of the newest bar for a symbol.
func PriceLatestKey(symbol string) string {
	return formatKey("price", "latest", strings.ToUpper(symbol))
}

// SyncLockKey guards concurrent upserts of one symbol and interval.
func SyncLockKey(symbol, interval string) string {
	return formatKey("lock", "sync", strings.ToUpper(symbol), interval)
}

// SymbolTTL returns the TTL for cached symbol records.
func SymbolTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}

// PriceTTL returns the short-lived TTL for latest price keys.
func PriceTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// SyncLockTTL returns how long a sync lock may be held before it expires.
func SyncLockTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLMedium, 5) // ~5m when medium=60s
}
