package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtcache/pkg/market"
)

var trendingCloses = []float64{100, 101, 102, 103, 105, 107, 106, 108, 110, 111, 112, 115, 117, 119, 118, 120, 121, 123, 125, 124, 126, 127, 129, 130, 132, 133, 134, 135, 136, 138, 139, 141, 140, 142, 144, 143, 145, 147, 149, 148, 150, 151, 149, 148, 150, 152, 151, 153, 154, 156, 155, 157, 158, 160, 161, 159, 158, 157, 159, 160}

func TestEMA(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}
	result := EMA(data, 3)
	require.Len(t, result, len(data))
	require.True(t, math.IsNaN(result[0]))
	require.True(t, math.IsNaN(result[1]))
	require.InDelta(t, 2.0, result[2], 1e-9)
	require.InDelta(t, 3.0, result[3], 1e-9)
	require.InDelta(t, 4.0, result[4], 1e-9)
	require.InDelta(t, 5.0, result[5], 1e-9)
}

func TestEMACarriesOverGaps(t *testing.T) {
	result := EMA([]float64{100, 101, math.NaN(), 103, 104, 105}, 3)
	require.True(t, math.IsNaN(result[2]))
	require.True(t, math.IsNaN(result[4]))
	require.InDelta(t, 104.0, result[5], 1e-9)
	require.Empty(t, EMA(nil, 3))
	require.Empty(t, EMA([]float64{1, 2}, 0))
}

func TestMACD(t *testing.T) {
	macd, signal, hist := MACD(trendingCloses, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	require.Len(t, macd, len(trendingCloses))
	require.Len(t, signal, len(trendingCloses))
	require.Len(t, hist, len(trendingCloses))

	last := len(trendingCloses) - 1
	require.InDelta(t, 5.582947, macd[last], 1e-6)
	require.InDelta(t, 6.307087, signal[last], 1e-6)
	require.InDelta(t, -0.724141, hist[last], 1e-6)
}

func TestRSI(t *testing.T) {
	rsi := RSI(trendingCloses, 14)
	require.Len(t, rsi, len(trendingCloses))
	require.InDelta(t, 73.084185, rsi[len(rsi)-1], 1e-6)

	flat := RSI([]float64{5, 5, 5, 5}, 2)
	require.InDelta(t, 50.0, flat[3], 1e-9)
}

func TestATR(t *testing.T) {
	closes := []float64{100, 101, 102, 104, 103, 105, 107, 106, 108, 110, 112, 111, 113, 115, 114, 116, 118, 117, 119, 121}
	candles := candlesFromCloses(closes)

	atr := ATR(candles, 14)
	require.Len(t, atr, len(candles))
	require.InDelta(t, 3.326525, atr[len(atr)-1], 1e-6)
}

func TestCompute(t *testing.T) {
	candles := candlesFromCloses(trendingCloses)
	series := Compute(candles, Params{EMAPeriod: 5})

	require.Len(t, series.EMA, len(candles))
	require.Len(t, series.RSI, len(candles))
	require.Len(t, series.MACDHist, len(candles))
	require.Len(t, series.ATR, len(candles))
	require.True(t, math.IsNaN(series.EMA[3]))
	require.False(t, math.IsNaN(series.EMA[4]))
	require.True(t, math.IsNaN(series.RSI[DefaultRSIPeriod-1]))
	require.InDelta(t, 73.084185, series.RSI[len(candles)-1], 1e-6)
	require.InDelta(t, -0.724141, series.MACDHist[len(candles)-1], 1e-6)
}

func candlesFromCloses(closes []float64) []market.Candle {
	base := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		start := base.Add(time.Duration(i) * time.Minute)
		out[i] = market.Candle{
			Symbol:   "TEST",
			Interval: market.OneMinute,
			Start:    start,
			End:      start.Add(time.Minute),
			Open:     c,
			High:     c + 1.5,
			Low:      c - 1.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}
