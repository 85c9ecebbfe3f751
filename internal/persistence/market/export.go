package marketpersist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"qtcache/internal/persistence/engine"
	"qtcache/pkg/market"
)

// Snapshot is a column-oriented copy of the whole candle cache, ordered by
// symbol, interval and start. All column slices have the same length.
type Snapshot struct {
	Symbol   []string
	Interval []market.Interval
	Start    []time.Time
	End      []time.Time
	Open     []float64
	High     []float64
	Low      []float64
	Close    []float64
	Volume   []float64
	VWAP     []*float64

	ranges map[string][2]int
}

// CandleRecord is the parquet row layout of a snapshot.
type CandleRecord struct {
	Symbol   string   `parquet:"symbol"`
	Interval string   `parquet:"interval"`
	StartMs  int64    `parquet:"start_ms"`
	EndMs    int64    `parquet:"end_ms"`
	Open     float64  `parquet:"open"`
	High     float64  `parquet:"high"`
	Low      float64  `parquet:"low"`
	Close    float64  `parquet:"close"`
	Volume   float64  `parquet:"volume"`
	VWAP     *float64 `parquet:"vwap,optional"`
}

// Len returns the number of bars in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Symbol)
}

// Index returns the half-open row range [from, to) holding symbol.
func (s *Snapshot) Index(symbol string) (int, int, bool) {
	r, ok := s.ranges[market.NormalizeSymbol(symbol)]
	return r[0], r[1], ok
}

// Rows converts the columns into parquet rows.
func (s *Snapshot) Rows() []CandleRecord {
	out := make([]CandleRecord, s.Len())
	for i := range out {
		out[i] = CandleRecord{
			Symbol:   s.Symbol[i],
			Interval: string(s.Interval[i]),
			StartMs:  s.Start[i].UnixMilli(),
			EndMs:    s.End[i].UnixMilli(),
			Open:     s.Open[i],
			High:     s.High[i],
			Low:      s.Low[i],
			Close:    s.Close[i],
			Volume:   s.Volume[i],
			VWAP:     s.VWAP[i],
		}
	}
	return out
}

// WriteParquet writes the snapshot to path.
func (s *Snapshot) WriteParquet(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("marketpersist: create export dir: %w", err)
	}
	if err := parquet.WriteFile(path, s.Rows()); err != nil {
		return fmt.Errorf("marketpersist: write parquet %s: %w", path, err)
	}
	return nil
}

func (s *Snapshot) append(r engine.CandleRow) {
	if s.ranges == nil {
		s.ranges = make(map[string][2]int)
	}
	i := s.Len()
	if rg, ok := s.ranges[r.Symbol]; ok {
		rg[1] = i + 1
		s.ranges[r.Symbol] = rg
	} else {
		s.ranges[r.Symbol] = [2]int{i, i + 1}
	}
	s.Symbol = append(s.Symbol, r.Symbol)
	s.Interval = append(s.Interval, market.Interval(r.Interval))
	s.Start = append(s.Start, time.UnixMilli(r.StartMs).UTC())
	s.End = append(s.End, time.UnixMilli(r.EndMs).UTC())
	s.Open = append(s.Open, r.Open)
	s.High = append(s.High, r.High)
	s.Low = append(s.Low, r.Low)
	s.Close = append(s.Close, r.Close)
	s.Volume = append(s.Volume, r.Volume)
	var vwap *float64
	if r.VWAP.Valid {
		v := r.VWAP.Float64
		vwap = &v
	}
	s.VWAP = append(s.VWAP, vwap)
}

// ExportSnapshot reads every cached bar into a columnar snapshot.
func (s *CandleStore) ExportSnapshot(ctx context.Context) (*Snapshot, error) {
	var rows []engine.CandleRow
	query := "SELECT " + engine.CandleColumns + " FROM candles ORDER BY symbol, bar_interval, start_ms"
	if err := s.engine.Conn().QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("marketpersist: export candles: %w", err)
	}
	snap := &Snapshot{ranges: make(map[string][2]int)}
	for _, r := range rows {
		snap.append(r)
	}
	return snap, nil
}

// ExportParquet writes the snapshot to <dir>/<YYYYMMDD>_all_candles.parquet.
func (s *CandleStore) ExportParquet(ctx context.Context, dir string, now time.Time) (string, error) {
	snap, err := s.ExportSnapshot(ctx)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, now.Format("20060102")+"_all_candles.parquet")
	if err := snap.WriteParquet(path); err != nil {
		return "", err
	}
	return path, nil
}
