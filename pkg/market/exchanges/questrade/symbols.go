package questrade

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"qtcache/pkg/market"
)

// SearchSymbols finds symbols by ticker prefix or description word.
func (c *Client) SearchSymbols(ctx context.Context, prefix string, offset int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("prefix", strings.TrimSpace(prefix))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var resp SearchResponse
	if err := c.doRequest(ctx, "v1/symbols/search", q, &resp); err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

// SymbolByID returns full detail for a single symbol id.
func (c *Client) SymbolByID(ctx context.Context, symbolID int64) (*SymbolDetail, error) {
	var resp SymbolsResponse
	if err := c.doRequest(ctx, fmt.Sprintf("v1/symbols/%d", symbolID), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Symbols) == 0 {
		return nil, fmt.Errorf("%w: questrade: symbol id %d", market.ErrNotFound, symbolID)
	}
	return &resp.Symbols[0], nil
}

// SymbolsByIDs returns detail for several symbol ids.
func (c *Client) SymbolsByIDs(ctx context.Context, symbolIDs []int64) ([]SymbolDetail, error) {
	if len(symbolIDs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("ids", joinIDs(symbolIDs))
	var resp SymbolsResponse
	if err := c.doRequest(ctx, "v1/symbols", q, &resp); err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

// SymbolsByNames returns detail for several tickers.
func (c *Client) SymbolsByNames(ctx context.Context, names []string) ([]SymbolDetail, error) {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("names", strings.Join(cleaned, ","))
	var resp SymbolsResponse
	if err := c.doRequest(ctx, "v1/symbols", q, &resp); err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

// toSymbol converts the wire payload into the store record.
func (d *SymbolDetail) toSymbol() *market.Symbol {
	if d == nil {
		return nil
	}
	out := &market.Symbol{
		Symbol:             market.NormalizeSymbol(d.Symbol),
		SymbolID:           d.SymbolID,
		Description:        d.Description,
		ListingExchange:    d.ListingExchange,
		SecurityType:       d.SecurityType,
		Currency:           d.Currency,
		IndustrySector:     d.IndustrySector,
		IndustryGroup:      d.IndustryGroup,
		IndustrySubgroup:   d.IndustrySubgroup,
		PrevDayClosePrice:  d.PrevDayClosePrice,
		HighPrice52:        d.HighPrice52,
		LowPrice52:         d.LowPrice52,
		AverageVol3Months:  d.AverageVol3Months,
		AverageVol20Days:   d.AverageVol20Days,
		OutstandingShares:  d.OutstandingShares,
		MarketCap:          d.MarketCap,
		EPS:                d.EPS,
		PE:                 d.PE,
		Dividend:           d.Dividend,
		Yield:              d.Yield,
		ExDate:             d.ExDate.ptr(),
		DividendDate:       d.DividendDate.ptr(),
		TradeUnit:          d.TradeUnit,
		IsTradable:         d.IsTradable,
		IsQuotable:         d.IsQuotable,
		HasOptions:         d.HasOptions,
		OptionType:         deref(d.OptionType),
		OptionDurationType: deref(d.OptionDurationType),
		OptionRoot:         d.OptionRoot,
		OptionExerciseType: deref(d.OptionExerciseType),
		OptionExpiryDate:   d.OptionExpiryDate.ptr(),
		OptionStrikePrice:  d.OptionStrikePrice,
	}
	if len(d.MinTicks) > 0 {
		out.MinTicks = make([]market.MinTick, 0, len(d.MinTicks))
		for _, mt := range d.MinTicks {
			out.MinTicks = append(out.MinTicks, market.MinTick{Pivot: mt.Pivot, MinTick: mt.MinTick})
		}
		sort.Slice(out.MinTicks, func(i, j int) bool {
			return out.MinTicks[i].Pivot < out.MinTicks[j].Pivot
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
