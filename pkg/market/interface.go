package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Gateway exposes the upstream brokerage calls the local stores depend on.
type Gateway interface {
	// SymbolDetail resolves a ticker to its full metadata record.
	SymbolDetail(ctx context.Context, symbol string) (*Symbol, error)
	// Candles returns bars in [start, end] ordered by start time.
	Candles(ctx context.Context, symbol string, interval Interval, start, end time.Time) ([]Candle, error)
}

// Symbol is point-in-time security metadata. Pointer fields are nil when the
// upstream payload reports null for them.
type Symbol struct {
	Symbol          string `json:"symbol"`
	SymbolID        int64  `json:"symbolId"`
	Description     string `json:"description"`
	ListingExchange string `json:"listingExchange"`
	SecurityType    string `json:"securityType"`
	Currency        string `json:"currency"`

	IndustrySector   string `json:"industrySector"`
	IndustryGroup    string `json:"industryGroup"`
	IndustrySubgroup string `json:"industrySubgroup"`

	PrevDayClosePrice *float64 `json:"prevDayClosePrice,omitempty"`
	HighPrice52       *float64 `json:"highPrice52,omitempty"`
	LowPrice52        *float64 `json:"lowPrice52,omitempty"`
	AverageVol3Months *int64   `json:"averageVol3Months,omitempty"`
	AverageVol20Days  *int64   `json:"averageVol20Days,omitempty"`
	OutstandingShares *int64   `json:"outstandingShares,omitempty"`
	MarketCap         *int64   `json:"marketCap,omitempty"`
	EPS               *float64 `json:"eps,omitempty"`
	PE                *float64 `json:"pe,omitempty"`
	Dividend          *float64 `json:"dividend,omitempty"`
	Yield             *float64 `json:"yield,omitempty"`

	ExDate       *time.Time `json:"exDate,omitempty"`
	DividendDate *time.Time `json:"dividendDate,omitempty"`

	TradeUnit  int  `json:"tradeUnit"`
	IsTradable bool `json:"isTradable"`
	IsQuotable bool `json:"isQuotable"`
	HasOptions bool `json:"hasOptions"`

	OptionType         string     `json:"optionType,omitempty"`
	OptionDurationType string     `json:"optionDurationType,omitempty"`
	OptionRoot         string     `json:"optionRoot,omitempty"`
	OptionExerciseType string     `json:"optionExerciseType,omitempty"`
	OptionExpiryDate   *time.Time `json:"optionExpiryDate,omitempty"`
	OptionStrikePrice  *float64   `json:"optionStrikePrice,omitempty"`

	MinTicks []MinTick `json:"minTicks,omitempty"`

	LastRefreshed time.Time `json:"lastRefreshed"`
}

// MinTick is one step of the tick-size schedule: prices at or above Pivot
// trade in increments of MinTick.
type MinTick struct {
	Pivot   float64 `json:"pivot"`
	MinTick float64 `json:"minTick"`
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Validate checks the fields the stores key on.
func (s *Symbol) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil symbol record", ErrValidation)
	}
	if NormalizeSymbol(s.Symbol) == "" {
		return fmt.Errorf("%w: symbol is empty", ErrValidation)
	}
	if s.SymbolID <= 0 {
		return fmt.Errorf("%w: symbol %s has no symbolId", ErrValidation, s.Symbol)
	}
	return nil
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (s *Symbol) Clone() *Symbol {
	if s == nil {
		return nil
	}
	out := *s
	out.PrevDayClosePrice = cloneFloat(s.PrevDayClosePrice)
	out.HighPrice52 = cloneFloat(s.HighPrice52)
	out.LowPrice52 = cloneFloat(s.LowPrice52)
	out.AverageVol3Months = cloneInt(s.AverageVol3Months)
	out.AverageVol20Days = cloneInt(s.AverageVol20Days)
	out.OutstandingShares = cloneInt(s.OutstandingShares)
	out.MarketCap = cloneInt(s.MarketCap)
	out.EPS = cloneFloat(s.EPS)
	out.PE = cloneFloat(s.PE)
	out.Dividend = cloneFloat(s.Dividend)
	out.Yield = cloneFloat(s.Yield)
	out.ExDate = cloneTime(s.ExDate)
	out.DividendDate = cloneTime(s.DividendDate)
	out.OptionExpiryDate = cloneTime(s.OptionExpiryDate)
	out.OptionStrikePrice = cloneFloat(s.OptionStrikePrice)
	if s.MinTicks != nil {
		out.MinTicks = append([]MinTick(nil), s.MinTicks...)
	}
	return &out
}

// Candle is an OHLCV bar. VWAP is nil when the bar has no traded value.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval Interval  `json:"interval"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	VWAP     *float64  `json:"vwap,omitempty"`
}

// HasVWAP reports whether a volume-weighted average price is defined.
func (c Candle) HasVWAP() bool {
	return c.VWAP != nil
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
