package questrade

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"qtcache/pkg/market"
)

// maxCandlesPerRequest is the per-response cap of v1/markets/candles.
const (
	maxCandlesPerRequest = 20000
	maxWindowSpan        = 100 * 365 * 24 * time.Hour
)

// GetCandles fetches bars for a symbol id in [start, end], splitting the
// range into windows that stay under the per-response cap. The result is
// ascending by start with duplicate starts collapsed (last one wins).
func (c *Client) GetCandles(ctx context.Context, symbolID int64, interval market.Interval, start, end time.Time) ([]market.Candle, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %q", market.ErrValidation, interval)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: candle range end %s is not after start %s", market.ErrValidation, end, start)
	}

	var out []market.Candle
	for _, w := range candleWindows(interval, start, end) {
		q := url.Values{}
		q.Set("startTime", formatTime(w[0]))
		q.Set("endTime", formatTime(w[1]))
		q.Set("interval", string(interval))

		var resp CandlesResponse
		if err := c.doRequest(ctx, fmt.Sprintf("v1/markets/candles/%d", symbolID), q, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Candles {
			if item.Start.IsZero() {
				continue
			}
			candle := market.Candle{
				Interval: interval,
				Start:    item.Start.Time,
				End:      item.End.Time,
				Open:     item.Open,
				High:     item.High,
				Low:      item.Low,
				Close:    item.Close,
				Volume:   item.Volume,
			}
			if item.VWAP != nil && item.Volume > 0 {
				v := *item.VWAP
				candle.VWAP = &v
			}
			out = append(out, candle)
		}
	}

	return dedupeCandles(out), nil
}

// candleWindows splits [start, end] into consecutive sub-ranges each holding
// at most maxCandlesPerRequest bars of the given interval.
func candleWindows(interval market.Interval, start, end time.Time) [][2]time.Time {
	// coarse intervals cover any realistic range in one request and would
	// overflow time.Duration when multiplied by the cap
	d := interval.Duration()
	if d <= 0 || d > maxWindowSpan/maxCandlesPerRequest {
		return [][2]time.Time{{start, end}}
	}
	span := d * maxCandlesPerRequest
	var windows [][2]time.Time
	for from := start; from.Before(end); from = from.Add(span) {
		to := from.Add(span)
		if to.After(end) {
			to = end
		}
		windows = append(windows, [2]time.Time{from, to})
	}
	return windows
}

func dedupeCandles(candles []market.Candle) []market.Candle {
	if len(candles) == 0 {
		return candles
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Start.Before(candles[j].Start)
	})
	out := candles[:0]
	for _, c := range candles {
		if n := len(out); n > 0 && out[n-1].Start.Equal(c.Start) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
