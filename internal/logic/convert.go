package logic

import (
	"time"

	marketpersist "qtcache/internal/persistence/market"
	"qtcache/internal/types"
	"qtcache/pkg/market"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSymbol(rec *market.Symbol) types.Symbol {
	out := types.Symbol{
		Symbol:            rec.Symbol,
		SymbolID:          rec.SymbolID,
		Description:       rec.Description,
		ListingExchange:   rec.ListingExchange,
		SecurityType:      rec.SecurityType,
		Currency:          rec.Currency,
		IndustrySector:    rec.IndustrySector,
		IndustryGroup:     rec.IndustryGroup,
		PrevDayClosePrice: rec.PrevDayClosePrice,
		AverageVol3Months: rec.AverageVol3Months,
		MarketCap:         rec.MarketCap,
		Dividend:          rec.Dividend,
		Yield:             rec.Yield,
		IsTradable:        rec.IsTradable,
		IsQuotable:        rec.IsQuotable,
		LastRefreshed:     formatTime(rec.LastRefreshed),
	}
	for _, tick := range rec.MinTicks {
		out.MinTicks = append(out.MinTicks, types.MinTick{Pivot: tick.Pivot, MinTick: tick.MinTick})
	}
	return out
}

func toCandle(c market.Candle) types.Candle {
	return types.Candle{
		Start:  formatTime(c.Start),
		End:    formatTime(c.End),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
		VWAP:   c.VWAP,
	}
}

func toSyncResult(res marketpersist.SyncResult) types.SyncResult {
	out := types.SyncResult{
		Symbol:       res.Symbol,
		Fetched:      res.Fetched,
		Inserted:     res.Inserted,
		Updated:      res.Updated,
		CursorBefore: formatTime(res.CursorBefore),
		CursorAfter:  formatTime(res.CursorAfter),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
