package marketpersist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "qtcache/internal/cache"
	"qtcache/internal/persistence/engine"
	"qtcache/pkg/journal"
	"qtcache/pkg/market"
)

const defaultLookbackDays = 120

// SweepJournal records finished sync sweeps.
type SweepJournal interface {
	WriteSweep(rec *journal.SweepRecord) (string, error)
}

// CandleStoreConfig enumerates the candle store collaborators. Redis and
// Journal are optional.
type CandleStoreConfig struct {
	Engine       *engine.Engine
	Gateway      market.Gateway
	Symbols      *SymbolStore
	Redis        *redis.Redis
	TTL          cachekeys.TTLSet
	LookbackDays int
	SymbolDelay  time.Duration
	BackupDir    string
	Journal      SweepJournal
	Forecast     ForecastConfig
	Now          func() time.Time
}

// CandleStore caches OHLCV bars keyed by (symbol, interval, start).
type CandleStore struct {
	engine       *engine.Engine
	gateway      market.Gateway
	symbols      *SymbolStore
	redis        *redis.Redis
	ttl          cachekeys.TTLSet
	lookbackDays int
	symbolDelay  time.Duration
	backupDir    string
	journal      SweepJournal
	forecast     ForecastConfig
	now          func() time.Time
}

// NewCandleStore wires a candle store over an initialized engine.
func NewCandleStore(cfg CandleStoreConfig) (*CandleStore, error) {
	if cfg.Engine == nil {
		return nil, errors.New("marketpersist: candle store requires an engine")
	}
	if cfg.Symbols == nil {
		return nil, errors.New("marketpersist: candle store requires a symbol store")
	}
	forecast, err := cfg.Forecast.normalise()
	if err != nil {
		return nil, err
	}
	store := &CandleStore{
		engine:       cfg.Engine,
		gateway:      cfg.Gateway,
		symbols:      cfg.Symbols,
		redis:        cfg.Redis,
		ttl:          cfg.TTL,
		lookbackDays: cfg.LookbackDays,
		symbolDelay:  cfg.SymbolDelay,
		backupDir:    cfg.BackupDir,
		journal:      cfg.Journal,
		forecast:     forecast,
		now:          cfg.Now,
	}
	if store.lookbackDays <= 0 {
		store.lookbackDays = defaultLookbackDays
	}
	if store.backupDir == "" {
		store.backupDir = "data/backups"
	}
	if store.now == nil {
		store.now = time.Now
	}
	return store, nil
}

// FetchRange returns upstream bars without touching the cache.
func (s *CandleStore) FetchRange(ctx context.Context, symbol string, interval market.Interval, start, end time.Time) ([]market.Candle, error) {
	key, err := validateSeries(symbol, interval)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: range end %s is not after start %s", market.ErrValidation, end, start)
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("marketpersist: no gateway configured to fetch %s", key)
	}
	candles, err := s.gateway.Candles(ctx, key, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("marketpersist: fetch candles %s %s: %w", key, interval, err)
	}
	return candles, nil
}

// ReadRange returns cached bars with start in [start, end), ascending.
func (s *CandleStore) ReadRange(ctx context.Context, symbol string, interval market.Interval, start, end time.Time) ([]market.Candle, error) {
	key, err := validateSeries(symbol, interval)
	if err != nil {
		return nil, err
	}
	var rows []engine.CandleRow
	query := s.engine.Rebind("SELECT " + engine.CandleColumns + " FROM candles WHERE symbol = ? AND bar_interval = ? AND start_ms >= ? AND start_ms < ? ORDER BY start_ms")
	if err := s.engine.Conn().QueryRowsCtx(ctx, &rows, query, key, string(interval), start.UnixMilli(), end.UnixMilli()); err != nil {
		return nil, fmt.Errorf("marketpersist: read candles %s %s: %w", key, interval, err)
	}
	return rowsToCandles(rows), nil
}

func (s *CandleStore) readSeries(ctx context.Context, key string, interval market.Interval) ([]market.Candle, error) {
	var rows []engine.CandleRow
	query := s.engine.Rebind("SELECT " + engine.CandleColumns + " FROM candles WHERE symbol = ? AND bar_interval = ? ORDER BY start_ms")
	if err := s.engine.Conn().QueryRowsCtx(ctx, &rows, query, key, string(interval)); err != nil {
		return nil, fmt.Errorf("marketpersist: read candles %s %s: %w", key, interval, err)
	}
	return rowsToCandles(rows), nil
}

// SyncResult reports one incremental sync.
type SyncResult struct {
	Symbol       string
	Interval     market.Interval
	Fetched      int
	Inserted     int
	Updated      int
	CursorBefore time.Time
	CursorAfter  time.Time
	Err          error
}

// SyncSymbol brings the cached series for (symbol, interval) up to date.
// Without a cursor it backfills LookbackDays; otherwise it fetches from the
// newest cached bar, which is re-read and overwritten.
func (s *CandleStore) SyncSymbol(ctx context.Context, symbol string, interval market.Interval) (SyncResult, error) {
	key, err := validateSeries(symbol, interval)
	if err != nil {
		return SyncResult{Symbol: market.NormalizeSymbol(symbol), Interval: interval}, err
	}
	result := SyncResult{Symbol: key, Interval: interval}
	if s.gateway == nil {
		return result, fmt.Errorf("marketpersist: no gateway configured to sync %s", key)
	}
	if _, err := s.symbols.Get(ctx, key, PreferCache); err != nil {
		return result, err
	}

	release, err := s.acquireSyncLock(ctx, key, interval)
	if err != nil {
		return result, err
	}
	defer release()

	before, err := s.cursor(ctx, key, interval)
	if err != nil {
		return result, err
	}
	result.CursorBefore = before

	now := s.now()
	var start, end time.Time
	if before.IsZero() {
		start = midnight(now.AddDate(0, 0, -s.lookbackDays))
		end = endOfDay(now)
	} else {
		start, end = before, now
	}
	if !end.After(start) {
		result.CursorAfter = before
		return result, nil
	}

	candles, err := s.gateway.Candles(ctx, key, interval, start, end)
	if err != nil {
		return result, fmt.Errorf("marketpersist: fetch candles %s %s: %w", key, interval, err)
	}
	result.Fetched = len(candles)
	if result.Inserted, result.Updated, err = s.upsertCandles(ctx, key, interval, candles); err != nil {
		return result, err
	}
	if result.CursorAfter, err = s.cursor(ctx, key, interval); err != nil {
		return result, err
	}
	s.refreshPriceCache(ctx, key)
	logx.WithContext(ctx).Infof("marketpersist: synced symbol=%s interval=%s fetched=%d inserted=%d updated=%d",
		key, interval, result.Fetched, result.Inserted, result.Updated)
	return result, nil
}

// upsertCandles writes the bars in one transaction and reports how many
// were new versus overwritten.
func (s *CandleStore) upsertCandles(ctx context.Context, key string, interval market.Interval, candles []market.Candle) (int, int, error) {
	rows := make([]engine.CandleRow, 0, len(candles))
	for _, c := range candles {
		if c.Start.IsZero() {
			continue
		}
		c.Symbol = key
		c.Interval = interval
		rows = append(rows, candleToRow(c))
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	minStart, maxStart := rows[0].StartMs, rows[0].StartMs
	for _, r := range rows[1:] {
		minStart = min(minStart, r.StartMs)
		maxStart = max(maxStart, r.StartMs)
	}

	existingQuery := s.engine.Rebind("SELECT start_ms FROM candles WHERE symbol = ? AND bar_interval = ? AND start_ms >= ? AND start_ms <= ?")
	stmt := s.engine.Rebind(`
INSERT INTO candles (` + engine.CandleColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (symbol, bar_interval, start_ms) DO UPDATE SET
    end_ms = excluded.end_ms,
    open = excluded.open,
    high = excluded.high,
    low = excluded.low,
    close = excluded.close,
    volume = excluded.volume,
    vwap = excluded.vwap`)

	var inserted, updated int
	err := s.engine.Transact(ctx, func(ctx context.Context, session sqlx.Session) error {
		inserted, updated = 0, 0
		var existing []int64
		if err := session.QueryRowsCtx(ctx, &existing, existingQuery, key, string(interval), minStart, maxStart); err != nil {
			return err
		}
		seen := make(map[int64]struct{}, len(existing)+len(rows))
		for _, ms := range existing {
			seen[ms] = struct{}{}
		}
		for _, r := range rows {
			if _, err := session.ExecCtx(ctx, stmt, r.Symbol, r.Interval, r.StartMs, r.EndMs, r.Open, r.High, r.Low, r.Close, r.Volume, nullableFloat(r.VWAP)); err != nil {
				return err
			}
			if _, ok := seen[r.StartMs]; ok {
				updated++
				continue
			}
			seen[r.StartMs] = struct{}{}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("marketpersist: upsert candles %s %s: %w", key, interval, err)
	}
	return inserted, updated, nil
}

func (s *CandleStore) cursor(ctx context.Context, key string, interval market.Interval) (time.Time, error) {
	var maxStart int64
	query := s.engine.Rebind("SELECT COALESCE(MAX(start_ms), 0) FROM candles WHERE symbol = ? AND bar_interval = ?")
	if err := s.engine.Conn().QueryRowCtx(ctx, &maxStart, query, key, string(interval)); err != nil {
		return time.Time{}, fmt.Errorf("marketpersist: read cursor %s %s: %w", key, interval, err)
	}
	if maxStart == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(maxStart).UTC(), nil
}

// acquireSyncLock takes the cross-process (symbol, interval) lock when Redis
// is configured. An unreachable Redis does not block the sync.
func (s *CandleStore) acquireSyncLock(ctx context.Context, key string, interval market.Interval) (func(), error) {
	if s.redis == nil {
		return func() {}, nil
	}
	lockKey := cachekeys.SyncLockKey(key, string(interval))
	lock := redis.NewRedisLock(s.redis, lockKey)
	if ttl := cachekeys.SyncLockTTL(s.ttl); ttl > 0 {
		lock.SetExpire(int(ttl / time.Second))
	}
	ok, err := lock.AcquireCtx(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: acquire sync lock key=%s err=%v", lockKey, err)
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: sync of %s %s already in progress", market.ErrTransient, key, interval)
	}
	return func() {
		if _, err := lock.ReleaseCtx(context.WithoutCancel(ctx)); err != nil {
			logx.WithContext(ctx).Errorf("marketpersist: release sync lock key=%s err=%v", lockKey, err)
		}
	}, nil
}

// LatestPrice returns the close of the newest bar in the finest interval
// cached for symbol.
func (s *CandleStore) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	key := market.NormalizeSymbol(symbol)
	if key == "" {
		return 0, fmt.Errorf("%w: symbol is empty", market.ErrValidation)
	}
	if s.redis != nil {
		raw, err := s.redis.GetCtx(ctx, cachekeys.PriceLatestKey(key))
		switch {
		case err != nil:
			logx.WithContext(ctx).Errorf("marketpersist: get price cache symbol=%s err=%v", key, err)
		case raw != "":
			if price, perr := strconv.ParseFloat(raw, 64); perr == nil {
				return price, nil
			}
		}
	}
	price, err := s.latestFromStore(ctx, key)
	if err != nil {
		return 0, err
	}
	s.cachePrice(ctx, key, price)
	return price, nil
}

func (s *CandleStore) latestFromStore(ctx context.Context, key string) (float64, error) {
	var intervals []string
	query := s.engine.Rebind("SELECT DISTINCT bar_interval FROM candles WHERE symbol = ?")
	if err := s.engine.Conn().QueryRowsCtx(ctx, &intervals, query, key); err != nil {
		return 0, fmt.Errorf("marketpersist: list intervals %s: %w", key, err)
	}
	if len(intervals) == 0 {
		return 0, fmt.Errorf("%w: no candles cached for %s", market.ErrNoData, key)
	}
	finest := market.Interval(intervals[0])
	for _, raw := range intervals[1:] {
		if candidate := market.Interval(raw); candidate.Finer(finest) {
			finest = candidate
		}
	}
	var price float64
	query = s.engine.Rebind("SELECT close FROM candles WHERE symbol = ? AND bar_interval = ? ORDER BY start_ms DESC LIMIT 1")
	if err := s.engine.Conn().QueryRowCtx(ctx, &price, query, key, string(finest)); err != nil {
		if errors.Is(err, sqlx.ErrNotFound) {
			return 0, fmt.Errorf("%w: no candles cached for %s", market.ErrNoData, key)
		}
		return 0, fmt.Errorf("marketpersist: latest price %s: %w", key, err)
	}
	return price, nil
}

func (s *CandleStore) refreshPriceCache(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	price, err := s.latestFromStore(ctx, key)
	if err != nil {
		if _, derr := s.redis.DelCtx(ctx, cachekeys.PriceLatestKey(key)); derr != nil {
			logx.WithContext(ctx).Errorf("marketpersist: del price cache symbol=%s err=%v", key, derr)
		}
		return
	}
	s.cachePrice(ctx, key, price)
}

func (s *CandleStore) cachePrice(ctx context.Context, key string, price float64) {
	if s.redis == nil {
		return
	}
	ttl := cachekeys.PriceTTL(s.ttl)
	if ttl < time.Second {
		return
	}
	if err := s.redis.SetexCtx(ctx, cachekeys.PriceLatestKey(key), strconv.FormatFloat(price, 'f', -1, 64), int(ttl/time.Second)); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: set price cache symbol=%s err=%v", key, err)
	}
}

func validateSeries(symbol string, interval market.Interval) (string, error) {
	key := market.NormalizeSymbol(symbol)
	if key == "" {
		return "", fmt.Errorf("%w: symbol is empty", market.ErrValidation)
	}
	if !interval.Valid() {
		return "", fmt.Errorf("%w: unsupported interval %q", market.ErrValidation, interval)
	}
	return key, nil
}

func candleToRow(c market.Candle) engine.CandleRow {
	row := engine.CandleRow{
		Symbol:   c.Symbol,
		Interval: string(c.Interval),
		StartMs:  c.Start.UnixMilli(),
		EndMs:    c.End.UnixMilli(),
		Open:     c.Open,
		High:     c.High,
		Low:      c.Low,
		Close:    c.Close,
		Volume:   c.Volume,
	}
	if c.VWAP != nil {
		row.VWAP = sql.NullFloat64{Float64: *c.VWAP, Valid: true}
	}
	return row
}

func rowsToCandles(rows []engine.CandleRow) []market.Candle {
	out := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		c := market.Candle{
			Symbol:   r.Symbol,
			Interval: market.Interval(r.Interval),
			Start:    time.UnixMilli(r.StartMs).UTC(),
			End:      time.UnixMilli(r.EndMs).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
		}
		if r.VWAP.Valid {
			v := r.VWAP.Float64
			c.VWAP = &v
		}
		out = append(out, c)
	}
	return out
}

func nullableFloat(v sql.NullFloat64) any {
	if v.Valid {
		return v.Float64
	}
	return nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, t.Location())
}
