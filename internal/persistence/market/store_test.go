package marketpersist

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtcache/internal/persistence/engine"
	"qtcache/pkg/market"
)

// fakeGateway serves canned symbol records and bars.
type fakeGateway struct {
	mu          sync.Mutex
	symbols     map[string]*market.Symbol
	bars        map[string][]market.Candle
	candleErr   map[string]error
	detailErr   error
	detailCalls int
	candleCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		symbols:   make(map[string]*market.Symbol),
		bars:      make(map[string][]market.Candle),
		candleErr: make(map[string]error),
	}
}

func (g *fakeGateway) addSymbol(symbol string, id int64, sector string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.symbols[symbol] = &market.Symbol{
		Symbol:         symbol,
		SymbolID:       id,
		Description:    symbol + " INC",
		Currency:       "USD",
		IndustrySector: sector,
		IsTradable:     true,
		IsQuotable:     true,
	}
}

func (g *fakeGateway) addBar(symbol string, interval market.Interval, start time.Time, close float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := symbol + "|" + string(interval)
	vwap := close - 0.1
	g.bars[key] = append(g.bars[key], market.Candle{
		Symbol:   symbol,
		Interval: interval,
		Start:    start,
		End:      start.Add(interval.Duration()),
		Open:     close - 0.5,
		High:     close + 1,
		Low:      close - 1,
		Close:    close,
		Volume:   1000,
		VWAP:     &vwap,
	})
}

// correctBar rewrites the prices of an existing bar, as an upstream data
// correction would.
func (g *fakeGateway) correctBar(symbol string, interval market.Interval, start time.Time, close float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := symbol + "|" + string(interval)
	for i, c := range g.bars[key] {
		if c.Start.Equal(start) {
			g.bars[key][i].Close = close
			g.bars[key][i].High = close + 1
			g.bars[key][i].VWAP = nil
		}
	}
}

func (g *fakeGateway) SymbolDetail(_ context.Context, symbol string) (*market.Symbol, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detailCalls++
	if g.detailErr != nil {
		return nil, g.detailErr
	}
	rec, ok := g.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: fake: %s", market.ErrNotFound, symbol)
	}
	return rec.Clone(), nil
}

func (g *fakeGateway) Candles(_ context.Context, symbol string, interval market.Interval, start, end time.Time) ([]market.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.candleCalls++
	if err := g.candleErr[symbol]; err != nil {
		return nil, err
	}
	var out []market.Candle
	for _, c := range g.bars[symbol+"|"+string(interval)] {
		if !c.Start.Before(start) && !c.Start.After(end) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testStores struct {
	engine  *engine.Engine
	gateway *fakeGateway
	clock   *testClock
	symbols *SymbolStore
	candles *CandleStore
	dir     string
}

func newTestStores(t *testing.T, mutate ...func(*SymbolStoreConfig, *CandleStoreConfig)) *testStores {
	t.Helper()
	dir := t.TempDir()
	e, err := engine.Open(context.Background(), engine.Config{
		Driver:    engine.DriverSQLite,
		DSN:       filepath.Join(dir, "candles.db"),
		BusyDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Initialize(context.Background()))

	gw := newFakeGateway()
	clock := &testClock{now: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)}
	symCfg := SymbolStoreConfig{Engine: e, Gateway: gw, Now: clock.Now}
	candleCfg := CandleStoreConfig{
		Engine:    e,
		Gateway:   gw,
		BackupDir: filepath.Join(dir, "backups"),
		Now:       clock.Now,
	}
	for _, fn := range mutate {
		fn(&symCfg, &candleCfg)
	}
	symbols, err := NewSymbolStore(symCfg)
	require.NoError(t, err)
	candleCfg.Symbols = symbols
	candles, err := NewCandleStore(candleCfg)
	require.NoError(t, err)
	return &testStores{engine: e, gateway: gw, clock: clock, symbols: symbols, candles: candles, dir: dir}
}

func (ts *testStores) countCandles(t *testing.T, symbol string) int64 {
	t.Helper()
	var n int64
	query := "SELECT COUNT(*) FROM candles WHERE symbol = ?"
	require.NoError(t, ts.engine.Conn().QueryRowCtx(context.Background(), &n, query, strings.ToUpper(symbol)))
	return n
}

// addDailyBars adds one OneDay bar per day at midnight UTC over [from, to].
func (ts *testStores) addDailyBars(symbol string, from, to time.Time) int {
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		ts.gateway.addBar(symbol, market.OneDay, d, 100+float64(n))
		n++
	}
	return n
}
