package marketpersist

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/parquet-go/parquet-go"
	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/pkg/market"
	"qtcache/pkg/market/indicators"
)

const (
	defaultForecastMinBars  = 2
	defaultForecastTimezone = "America/New_York"
	forecastTimestampLayout = "2006-01-02 15:04:05"
)

// ForecastConfig tunes PrepareForecastDataset.
type ForecastConfig struct {
	Interval   market.Interval
	MinBars    int
	Timezone   string
	Indicators bool
	Params     indicators.Params

	location *time.Location
}

func (c ForecastConfig) normalise() (ForecastConfig, error) {
	if c.Interval == "" {
		c.Interval = market.OneMinute
	}
	if !c.Interval.Valid() {
		return c, fmt.Errorf("%w: forecast interval %q", market.ErrValidation, c.Interval)
	}
	if c.MinBars == 0 {
		c.MinBars = defaultForecastMinBars
	}
	if c.MinBars < 1 {
		return c, fmt.Errorf("%w: forecast min bars must be at least 1, got %d", market.ErrValidation, c.MinBars)
	}
	if c.Timezone == "" {
		c.Timezone = defaultForecastTimezone
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return c, fmt.Errorf("%w: forecast timezone %q: %v", market.ErrValidation, c.Timezone, err)
	}
	c.location = loc
	return c, nil
}

// ForecastRow is one observation of the long-format forecasting table.
type ForecastRow struct {
	ItemID         string   `parquet:"item_id" json:"item_id"`
	Timestamp      string   `parquet:"timestamp" json:"timestamp"`
	Target         float64  `parquet:"target" json:"target"`
	IndustrySector string   `parquet:"industry_sector" json:"industry_sector"`
	EMA            *float64 `parquet:"ema,optional" json:"ema,omitempty"`
	RSI            *float64 `parquet:"rsi,optional" json:"rsi,omitempty"`
	MACDHist       *float64 `parquet:"macd_hist,optional" json:"macd_hist,omitempty"`
	ATR            *float64 `parquet:"atr,optional" json:"atr,omitempty"`
}

// ForecastDataset is the prepared table plus the symbols left out of it.
type ForecastDataset struct {
	Interval market.Interval
	Timezone string
	Rows     []ForecastRow
	Items    []string
	Dropped  []string
}

// PrepareForecastDataset builds the forecasting table from cached bars of
// the forecast interval, optionally syncing every symbol first. Symbols
// with fewer than MinBars bars are dropped.
func (s *CandleStore) PrepareForecastDataset(ctx context.Context, updateFirst bool) (*ForecastDataset, error) {
	cfg := s.forecast
	logger := logx.WithContext(ctx)
	if updateFirst {
		if _, err := s.SyncAll(ctx, cfg.Interval, false); err != nil {
			return nil, fmt.Errorf("marketpersist: sync before forecast: %w", err)
		}
	}
	records, err := s.symbols.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	ds := &ForecastDataset{Interval: cfg.Interval, Timezone: cfg.Timezone}
	for _, rec := range records {
		candles, err := s.readSeries(ctx, rec.Symbol, cfg.Interval)
		if err != nil {
			return nil, err
		}
		if len(candles) < cfg.MinBars {
			logger.Infof("marketpersist: forecast drops symbol=%s bars=%d min=%d", rec.Symbol, len(candles), cfg.MinBars)
			ds.Dropped = append(ds.Dropped, rec.Symbol)
			continue
		}
		var series indicators.Series
		if cfg.Indicators {
			series = indicators.Compute(candles, cfg.Params)
		}
		for i, c := range candles {
			row := ForecastRow{
				ItemID:         rec.Symbol,
				Timestamp:      c.Start.In(cfg.location).Format(forecastTimestampLayout),
				Target:         c.Close,
				IndustrySector: rec.IndustrySector,
			}
			if cfg.Indicators {
				row.EMA = finite(series.EMA, i)
				row.RSI = finite(series.RSI, i)
				row.MACDHist = finite(series.MACDHist, i)
				row.ATR = finite(series.ATR, i)
			}
			ds.Rows = append(ds.Rows, row)
		}
		ds.Items = append(ds.Items, rec.Symbol)
	}
	// per-item rows are already in start order; keep it across DST repeats
	sort.SliceStable(ds.Rows, func(i, j int) bool {
		return ds.Rows[i].ItemID < ds.Rows[j].ItemID
	})
	return ds, nil
}

// WriteParquet writes the dataset rows to path.
func (d *ForecastDataset) WriteParquet(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("marketpersist: create forecast dir: %w", err)
	}
	if err := parquet.WriteFile(path, d.Rows); err != nil {
		return fmt.Errorf("marketpersist: write parquet %s: %w", path, err)
	}
	return nil
}

// ForecastPath is the dataset file name for a given day.
func ForecastPath(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format("20060102")+"_AG_combined.parquet")
}

// WriteForecastParquet prepares the dataset from the cache as it stands and
// writes it to <dir>/<YYYYMMDD>_AG_combined.parquet.
func (s *CandleStore) WriteForecastParquet(ctx context.Context, dir string, now time.Time) (string, error) {
	ds, err := s.PrepareForecastDataset(ctx, false)
	if err != nil {
		return "", err
	}
	path := ForecastPath(dir, now)
	if err := ds.WriteParquet(path); err != nil {
		return "", err
	}
	return path, nil
}

func finite(values []float64, i int) *float64 {
	if i >= len(values) || math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
		return nil
	}
	v := values[i]
	return &v
}
