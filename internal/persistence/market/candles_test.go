package marketpersist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"

	cachekeys "qtcache/internal/cache"
	"qtcache/pkg/journal"
	"qtcache/pkg/market"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSyncSymbolIncremental(t *testing.T) {
	ts := newTestStores(t)
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	ctx := context.Background()
	n := ts.addDailyBars("AAPL", day(2024, 2, 1), day(2024, 3, 4))

	first, err := ts.candles.SyncSymbol(ctx, "aapl", market.OneDay)
	require.NoError(t, err)
	require.Equal(t, n, first.Fetched)
	require.Equal(t, n, first.Inserted)
	require.Zero(t, first.Updated)
	require.True(t, first.CursorBefore.IsZero())
	require.Equal(t, day(2024, 3, 4), first.CursorAfter)
	require.EqualValues(t, n, ts.countCandles(t, "AAPL"))

	second, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)
	require.Zero(t, second.Inserted)
	require.Equal(t, 1, second.Updated)
	require.Equal(t, day(2024, 3, 4), second.CursorBefore)
	require.EqualValues(t, n, ts.countCandles(t, "AAPL"))

	ts.gateway.addBar("AAPL", market.OneDay, day(2024, 3, 5), 250)
	ts.clock.Set(time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC))
	third, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)
	require.Equal(t, 1, third.Inserted)
	require.Equal(t, 1, third.Updated)
	require.Equal(t, day(2024, 3, 5), third.CursorAfter)
	require.EqualValues(t, n+1, ts.countCandles(t, "AAPL"))
}

func TestSyncSymbolLookbackWindow(t *testing.T) {
	ts := newTestStores(t, func(_ *SymbolStoreConfig, cc *CandleStoreConfig) {
		cc.LookbackDays = 10
	})
	ts.gateway.addSymbol("SHOP", 1, "Technology")
	ts.addDailyBars("SHOP", day(2024, 2, 1), day(2024, 3, 4))

	res, err := ts.candles.SyncSymbol(context.Background(), "SHOP", market.OneDay)
	require.NoError(t, err)
	// midnight of 2024-02-23 through the end of 2024-03-04
	require.Equal(t, 11, res.Inserted)
}

func TestSyncSymbolErrors(t *testing.T) {
	ts := newTestStores(t)
	ctx := context.Background()

	_, err := ts.candles.SyncSymbol(ctx, "AAPL", market.Interval("Weekly"))
	require.True(t, errors.Is(err, market.ErrValidation))

	_, err = ts.candles.SyncSymbol(ctx, "NOPE", market.OneDay)
	require.True(t, errors.Is(err, market.ErrNotFound))
	require.Zero(t, ts.gateway.candleCalls)

	ts.gateway.addSymbol("MSFT", 2, "Technology")
	ts.gateway.candleErr["MSFT"] = fmt.Errorf("%w: upstream 503", market.ErrTransient)
	_, err = ts.candles.SyncSymbol(ctx, "MSFT", market.OneDay)
	require.True(t, errors.Is(err, market.ErrTransient))
	require.Zero(t, ts.countCandles(t, "MSFT"))
}

func TestReadRange(t *testing.T) {
	ts := newTestStores(t)
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	ts.addDailyBars("AAPL", day(2024, 2, 1), day(2024, 3, 4))
	ctx := context.Background()
	_, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)

	bars, err := ts.candles.ReadRange(ctx, "aapl", market.OneDay, day(2024, 2, 10), day(2024, 2, 15))
	require.NoError(t, err)
	require.Len(t, bars, 5)
	require.Equal(t, day(2024, 2, 10), bars[0].Start)
	require.Equal(t, day(2024, 2, 14), bars[4].Start)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i-1].Start.Before(bars[i].Start))
	}
	require.NotNil(t, bars[0].VWAP)
	require.Equal(t, "AAPL", bars[0].Symbol)

	empty, err := ts.candles.ReadRange(ctx, "AAPL", market.OneHour, day(2024, 2, 10), day(2024, 2, 15))
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestSyncRoundTripAndCorrection(t *testing.T) {
	ts := newTestStores(t)
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	ts.addDailyBars("AAPL", day(2024, 2, 20), day(2024, 3, 4))
	ctx := context.Background()
	_, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)

	want, err := ts.gateway.Candles(ctx, "AAPL", market.OneDay, day(2024, 2, 20), day(2024, 3, 5))
	require.NoError(t, err)
	got, err := ts.candles.ReadRange(ctx, "AAPL", market.OneDay, day(2024, 2, 20), day(2024, 3, 5))
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		require.True(t, want[i].Start.Equal(got[i].Start), "start %d", i)
		require.True(t, want[i].End.Equal(got[i].End), "end %d", i)
		require.Equal(t, want[i].Open, got[i].Open)
		require.Equal(t, want[i].High, got[i].High)
		require.Equal(t, want[i].Low, got[i].Low)
		require.Equal(t, want[i].Close, got[i].Close)
		require.Equal(t, want[i].Volume, got[i].Volume)
		require.NotNil(t, got[i].VWAP)
		require.InDelta(t, *want[i].VWAP, *got[i].VWAP, 1e-9)
	}

	// upstream corrects the bar at the cursor; the re-sync overwrites it
	ts.gateway.correctBar("AAPL", market.OneDay, day(2024, 3, 4), 999)
	res, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)
	require.Zero(t, res.Inserted)
	require.Equal(t, 1, res.Updated)

	bars, err := ts.candles.ReadRange(ctx, "AAPL", market.OneDay, day(2024, 3, 4), day(2024, 3, 5))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.Equal(t, 999.0, bars[0].Close)
	require.Equal(t, 1000.0, bars[0].High)
	require.Nil(t, bars[0].VWAP)

	price, err := ts.candles.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	require.Equal(t, 999.0, price)
}

func TestFetchRangeLeavesCacheUntouched(t *testing.T) {
	ts := newTestStores(t)
	ts.addDailyBars("AAPL", day(2024, 2, 1), day(2024, 2, 5))

	bars, err := ts.candles.FetchRange(context.Background(), "AAPL", market.OneDay, day(2024, 2, 1), day(2024, 2, 3))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	require.Zero(t, ts.countCandles(t, "AAPL"))

	_, err = ts.candles.FetchRange(context.Background(), "AAPL", market.OneDay, day(2024, 2, 3), day(2024, 2, 1))
	require.True(t, errors.Is(err, market.ErrValidation))
}

func TestLatestPrice(t *testing.T) {
	ts := newTestStores(t)
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	ctx := context.Background()

	_, err := ts.candles.LatestPrice(ctx, "AAPL")
	require.True(t, errors.Is(err, market.ErrNoData))

	ts.addDailyBars("AAPL", day(2024, 3, 1), day(2024, 3, 4))
	_, err = ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)
	price, err := ts.candles.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	require.InDelta(t, 103, price, 1e-9)

	ts.gateway.addBar("AAPL", market.OneHour, time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), 180)
	ts.gateway.addBar("AAPL", market.OneHour, time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), 181.25)
	_, err = ts.candles.SyncSymbol(ctx, "AAPL", market.OneHour)
	require.NoError(t, err)
	price, err = ts.candles.LatestPrice(ctx, "aapl")
	require.NoError(t, err)
	require.InDelta(t, 181.25, price, 1e-9)
}

func TestSyncAll(t *testing.T) {
	journalDir := filepath.Join(t.TempDir(), "journal")
	ts := newTestStores(t, func(_ *SymbolStoreConfig, cc *CandleStoreConfig) {
		cc.Journal = journal.NewWriter(journalDir)
	})
	ctx := context.Background()
	for i, sym := range []string{"SHOP", "AAPL", "MSFT"} {
		ts.gateway.addSymbol(sym, int64(i+1), "Technology")
		ts.addDailyBars(sym, day(2024, 3, 1), day(2024, 3, 4))
		_, err := ts.symbols.Get(ctx, sym, PreferCache)
		require.NoError(t, err)
	}
	ts.gateway.candleErr["MSFT"] = fmt.Errorf("%w: upstream 503", market.ErrTransient)

	report, err := ts.candles.SyncAll(ctx, market.OneDay, true)
	require.NoError(t, err)
	require.NotEmpty(t, report.SweepID)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 3)
	require.Equal(t, "AAPL", report.Results[0].Symbol)
	require.Equal(t, "MSFT", report.Results[1].Symbol)
	require.True(t, errors.Is(report.Results[1].Err, market.ErrTransient))
	require.Equal(t, 4, report.Results[2].Inserted)

	require.FileExists(t, report.BackupPath)
	require.Equal(t, filepath.Join(ts.dir, "backups", "candles_backup_20240304_150000.db"), report.BackupPath)

	rec, err := journal.ReadSweep(report.JournalPath)
	require.NoError(t, err)
	require.Equal(t, report.SweepID, rec.SweepID)
	require.Equal(t, "OneDay", rec.Interval)
	require.Len(t, rec.Symbols, 3)
	require.NotEmpty(t, rec.Symbols[1].Error)
	require.Empty(t, rec.Error)
}

func TestSyncAllBackupFailureSkipsSync(t *testing.T) {
	journalDir := filepath.Join(t.TempDir(), "journal")
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	ts := newTestStores(t, func(_ *SymbolStoreConfig, cc *CandleStoreConfig) {
		cc.BackupDir = filepath.Join(blocker, "backups")
		cc.Journal = journal.NewWriter(journalDir)
	})
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	ts.addDailyBars("AAPL", day(2024, 3, 1), day(2024, 3, 4))
	_, err := ts.symbols.Get(context.Background(), "AAPL", PreferCache)
	require.NoError(t, err)

	report, err := ts.candles.SyncAll(context.Background(), market.OneDay, true)
	require.Error(t, err)
	require.Empty(t, report.Results)
	require.Zero(t, ts.gateway.candleCalls)
	require.Zero(t, ts.countCandles(t, "AAPL"))

	rec, err := journal.ReadSweep(report.JournalPath)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Error)
}

func TestSyncAllCancelled(t *testing.T) {
	ts := newTestStores(t)
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	_, err := ts.symbols.Get(context.Background(), "AAPL", PreferCache)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := ts.candles.SyncAll(ctx, market.OneDay, false)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, report.Cancelled)
	require.Empty(t, report.Results)
}

func TestSyncLockHeldElsewhere(t *testing.T) {
	rds := redistest.CreateRedis(t)
	ts := newTestStores(t, func(_ *SymbolStoreConfig, cc *CandleStoreConfig) {
		cc.Redis = rds
		cc.TTL = cachekeys.TTLSet{Short: 10 * time.Second, Medium: time.Minute, Long: time.Hour}
	})
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	ts.addDailyBars("AAPL", day(2024, 3, 1), day(2024, 3, 4))
	ctx := context.Background()

	lockKey := cachekeys.SyncLockKey("AAPL", string(market.OneDay))
	require.NoError(t, rds.Set(lockKey, "another-process"))
	_, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.True(t, errors.Is(err, market.ErrTransient))
	require.Zero(t, ts.countCandles(t, "AAPL"))

	_, err = rds.Del(lockKey)
	require.NoError(t, err)
	_, err = ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)
	exists, err := rds.Exists(lockKey)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestLatestPriceRedisCache(t *testing.T) {
	rds := redistest.CreateRedis(t)
	ts := newTestStores(t, func(_ *SymbolStoreConfig, cc *CandleStoreConfig) {
		cc.Redis = rds
		cc.TTL = cachekeys.TTLSet{Short: 10 * time.Second, Medium: time.Minute, Long: time.Hour}
	})
	ts.gateway.addSymbol("AAPL", 8049, "Technology")
	ts.addDailyBars("AAPL", day(2024, 3, 1), day(2024, 3, 4))
	ctx := context.Background()

	_, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneDay)
	require.NoError(t, err)
	raw, err := rds.Get(cachekeys.PriceLatestKey("AAPL"))
	require.NoError(t, err)
	require.Equal(t, "103", raw)

	require.NoError(t, rds.Setex(cachekeys.PriceLatestKey("AAPL"), "99.5", 10))
	price, err := ts.candles.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	require.InDelta(t, 99.5, price, 1e-9)
}
