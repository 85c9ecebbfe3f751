package marketpersist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"qtcache/pkg/market"
)

func seedSnapshotStores(t *testing.T) *testStores {
	t.Helper()
	ts := newTestStores(t)
	ctx := context.Background()
	for i, sym := range []string{"MSFT", "AAPL"} {
		ts.gateway.addSymbol(sym, int64(i+1), "Technology")
		ts.addDailyBars(sym, day(2024, 3, 1), day(2024, 3, 4))
		_, err := ts.candles.SyncSymbol(ctx, sym, market.OneDay)
		require.NoError(t, err)
	}
	ts.gateway.addBar("AAPL", market.OneHour, time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), 180)
	_, err := ts.candles.SyncSymbol(ctx, "AAPL", market.OneHour)
	require.NoError(t, err)
	return ts
}

func TestExportSnapshot(t *testing.T) {
	ts := seedSnapshotStores(t)

	snap, err := ts.candles.ExportSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9, snap.Len())
	require.Len(t, snap.VWAP, snap.Len())
	require.Len(t, snap.Close, snap.Len())

	from, to, ok := snap.Index("aapl")
	require.True(t, ok)
	require.Equal(t, 0, from)
	require.Equal(t, 5, to)
	for i := from; i < to; i++ {
		require.Equal(t, "AAPL", snap.Symbol[i])
	}
	require.Equal(t, market.OneDay, snap.Interval[0])
	require.Equal(t, market.OneHour, snap.Interval[4])

	from, to, ok = snap.Index("MSFT")
	require.True(t, ok)
	require.Equal(t, 5, from)
	require.Equal(t, 9, to)

	_, _, ok = snap.Index("SHOP")
	require.False(t, ok)
}

func TestExportSnapshotEmpty(t *testing.T) {
	ts := newTestStores(t)
	snap, err := ts.candles.ExportSnapshot(context.Background())
	require.NoError(t, err)
	require.Zero(t, snap.Len())
	_, _, ok := snap.Index("AAPL")
	require.False(t, ok)
}

func TestExportParquet(t *testing.T) {
	ts := seedSnapshotStores(t)
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := ts.candles.ExportParquet(context.Background(), dir, ts.clock.Now())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20240304_all_candles.parquet"), path)

	rows, err := parquet.ReadFile[CandleRecord](path)
	require.NoError(t, err)
	require.Len(t, rows, 9)
	require.Equal(t, "AAPL", rows[0].Symbol)
	require.Equal(t, "OneDay", rows[0].Interval)
	require.Equal(t, day(2024, 3, 1).UnixMilli(), rows[0].StartMs)
	require.NotNil(t, rows[0].VWAP)
	require.InDelta(t, 99.9, *rows[0].VWAP, 1e-9)
}
