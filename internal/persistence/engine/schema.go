package engine

import (
	"context"
	"database/sql"
	"fmt"
)

// SymbolRow is the persisted form of a symbol record; Data holds the
// record as JSON.
type SymbolRow struct {
	Symbol          string `db:"symbol" msgpack:"S"`
	SymbolID        int64  `db:"symbol_id" msgpack:"id"`
	Data            string `db:"data" msgpack:"d"`
	LastRefreshedMs int64  `db:"last_refreshed_ms" msgpack:"r"`
}

// CandleRow is the persisted form of one bar.
type CandleRow struct {
	Symbol   string          `db:"symbol" msgpack:"S"`
	Interval string          `db:"bar_interval" msgpack:"i"`
	StartMs  int64           `db:"start_ms" msgpack:"t"`
	EndMs    int64           `db:"end_ms" msgpack:"e"`
	Open     float64         `db:"open" msgpack:"o"`
	High     float64         `db:"high" msgpack:"h"`
	Low      float64         `db:"low" msgpack:"l"`
	Close    float64         `db:"close" msgpack:"c"`
	Volume   float64         `db:"volume" msgpack:"v"`
	VWAP     sql.NullFloat64 `db:"vwap" msgpack:"vw"`
}

// Column lists matching the row structs, for SELECT statements.
const (
	SymbolColumns = "symbol, symbol_id, data, last_refreshed_ms"
	CandleColumns = "symbol, bar_interval, start_ms, end_ms, open, high, low, close, volume, vwap"
)

type columnTypes struct {
	bigint string
	real   string
}

func (e *Engine) columnTypes() columnTypes {
	if e.driver == DriverSQLite {
		return columnTypes{bigint: "INTEGER", real: "REAL"}
	}
	return columnTypes{bigint: "BIGINT", real: "DOUBLE PRECISION"}
}

// Initialize creates the tables and indexes when they are absent.
func (e *Engine) Initialize(ctx context.Context) error {
	t := e.columnTypes()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS symbols (
    symbol TEXT PRIMARY KEY,
    symbol_id %[1]s NOT NULL,
    data TEXT NOT NULL,
    last_refreshed_ms %[1]s NOT NULL
)`, t.bigint),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS candles (
    symbol TEXT NOT NULL,
    bar_interval TEXT NOT NULL,
    start_ms %[1]s NOT NULL,
    end_ms %[1]s NOT NULL,
    open %[2]s NOT NULL,
    high %[2]s NOT NULL,
    low %[2]s NOT NULL,
    close %[2]s NOT NULL,
    volume %[2]s NOT NULL,
    vwap %[2]s,
    PRIMARY KEY (symbol, bar_interval, start_ms)
)`, t.bigint, t.real),
		`CREATE INDEX IF NOT EXISTS idx_candles_time ON candles (symbol, bar_interval, start_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_symbol ON candles (symbol)`,
	}
	return e.retryBusy(ctx, "initialize", func() error {
		for _, stmt := range statements {
			if _, err := e.conn.ExecCtx(ctx, stmt); err != nil {
				return fmt.Errorf("engine: initialize schema: %w", err)
			}
		}
		return nil
	})
}
