// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package types

type Candle struct {
	Start  string   `json:"start"`
	End    string   `json:"end"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume float64  `json:"volume"`
	VWAP   *float64 `json:"vwap,omitempty"`
}

type CandlesRequest struct {
	Symbol   string `path:"symbol"`
	Interval string `form:"interval,optional"`
	Start    string `form:"start,optional"`
	End      string `form:"end,optional"`
}

type CandlesResponse struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Count    int      `json:"count"`
	Candles  []Candle `json:"candles"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type PriceRequest struct {
	Symbol string `path:"symbol"`
}

type PriceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type MinTick struct {
	Pivot   float64 `json:"pivot"`
	MinTick float64 `json:"minTick"`
}

type Symbol struct {
	Symbol            string    `json:"symbol"`
	SymbolID          int64     `json:"symbolId"`
	Description       string    `json:"description"`
	ListingExchange   string    `json:"listingExchange"`
	SecurityType      string    `json:"securityType"`
	Currency          string    `json:"currency"`
	IndustrySector    string    `json:"industrySector"`
	IndustryGroup     string    `json:"industryGroup"`
	PrevDayClosePrice *float64  `json:"prevDayClosePrice,omitempty"`
	AverageVol3Months *int64    `json:"averageVol3Months,omitempty"`
	MarketCap         *int64    `json:"marketCap,omitempty"`
	Dividend          *float64  `json:"dividend,omitempty"`
	Yield             *float64  `json:"yield,omitempty"`
	IsTradable        bool      `json:"isTradable"`
	IsQuotable        bool      `json:"isQuotable"`
	MinTicks          []MinTick `json:"minTicks,omitempty"`
	LastRefreshed     string    `json:"lastRefreshed"`
}

type SymbolListResponse struct {
	Count   int      `json:"count"`
	Symbols []Symbol `json:"symbols"`
}

type SymbolRequest struct {
	Symbol string `path:"symbol"`
	Policy string `form:"policy,optional"`
}

type SyncRequest struct {
	Interval string `json:"interval,optional"`
	Symbol   string `json:"symbol,optional"`
	Backup   *bool  `json:"backup,optional"`
}

type SyncResponse struct {
	SweepID     string       `json:"sweepId,omitempty"`
	Interval    string       `json:"interval"`
	BackupPath  string       `json:"backupPath,omitempty"`
	JournalPath string       `json:"journalPath,omitempty"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Results     []SyncResult `json:"results"`
}

type SyncResult struct {
	Symbol       string `json:"symbol"`
	Fetched      int    `json:"fetched"`
	Inserted     int    `json:"inserted"`
	Updated      int    `json:"updated"`
	CursorBefore string `json:"cursorBefore,omitempty"`
	CursorAfter  string `json:"cursorAfter,omitempty"`
	Error        string `json:"error,omitempty"`
}
