package questrade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// apiTime decodes the ISO-8601 timestamps Questrade emits, treating null and
// empty strings as the zero time.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("questrade: decode time: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("questrade: parse time %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

func (t apiTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t apiTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// formatTime renders a request timestamp with an explicit offset.
func formatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000-07:00")
}

// ServerTimeResponse is the payload of v1/time.
type ServerTimeResponse struct {
	Time apiTime `json:"time"`
}

// Account describes a brokerage account.
type Account struct {
	Type              string `json:"type"`
	Number            string `json:"number"`
	Status            string `json:"status"`
	IsPrimary         bool   `json:"isPrimary"`
	IsBilling         bool   `json:"isBilling"`
	ClientAccountType string `json:"clientAccountType"`
}

// AccountsResponse is the payload of v1/accounts.
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
	UserID   int64     `json:"userId"`
}

// Position is an open holding in an account.
type Position struct {
	Symbol             string   `json:"symbol"`
	SymbolID           int64    `json:"symbolId"`
	OpenQuantity       float64  `json:"openQuantity"`
	ClosedQuantity     float64  `json:"closedQuantity"`
	CurrentMarketValue *float64 `json:"currentMarketValue"`
	CurrentPrice       *float64 `json:"currentPrice"`
	AverageEntryPrice  float64  `json:"averageEntryPrice"`
	ClosedPnl          float64  `json:"closedPnl"`
	OpenPnl            *float64 `json:"openPnl"`
	TotalCost          float64  `json:"totalCost"`
	IsRealTime         bool     `json:"isRealTime"`
	IsUnderReorg       bool     `json:"isUnderReorg"`
}

// PositionsResponse is the payload of v1/accounts/{id}/positions.
type PositionsResponse struct {
	Positions []Position `json:"positions"`
}

// Balance is a per-currency balance line.
type Balance struct {
	Currency          string  `json:"currency"`
	Cash              float64 `json:"cash"`
	MarketValue       float64 `json:"marketValue"`
	TotalEquity       float64 `json:"totalEquity"`
	BuyingPower       float64 `json:"buyingPower"`
	MaintenanceExcess float64 `json:"maintenanceExcess"`
	IsRealTime        bool    `json:"isRealTime"`
}

// BalancesResponse is the payload of v1/accounts/{id}/balances.
type BalancesResponse struct {
	PerCurrencyBalances    []Balance `json:"perCurrencyBalances"`
	CombinedBalances       []Balance `json:"combinedBalances"`
	SODPerCurrencyBalances []Balance `json:"sodPerCurrencyBalances"`
	SODCombinedBalances    []Balance `json:"sodCombinedBalances"`
}

// Execution is a fill reported for an account.
type Execution struct {
	Symbol                   string  `json:"symbol"`
	SymbolID                 int64   `json:"symbolId"`
	Quantity                 float64 `json:"quantity"`
	Side                     string  `json:"side"`
	Price                    float64 `json:"price"`
	ID                       int64   `json:"id"`
	OrderID                  int64   `json:"orderId"`
	OrderChainID             int64   `json:"orderChainId"`
	ExchangeExecID           string  `json:"exchangeExecId"`
	Timestamp                apiTime `json:"timestamp"`
	Notes                    string  `json:"notes"`
	Venue                    string  `json:"venue"`
	TotalCost                float64 `json:"totalCost"`
	OrderPlacementCommission float64 `json:"orderPlacementCommission"`
	Commission               float64 `json:"commission"`
	ExecutionFee             float64 `json:"executionFee"`
	SecFee                   float64 `json:"secFee"`
	CanadianExecutionFee     float64 `json:"canadianExecutionFee"`
	ParentID                 int64   `json:"parentId"`
}

// ExecutionsResponse is the payload of v1/accounts/{id}/executions.
type ExecutionsResponse struct {
	Executions []Execution `json:"executions"`
}

// Order is an account order in any state.
type Order struct {
	ID                       int64    `json:"id"`
	Symbol                   string   `json:"symbol"`
	SymbolID                 int64    `json:"symbolId"`
	TotalQuantity            float64  `json:"totalQuantity"`
	OpenQuantity             float64  `json:"openQuantity"`
	FilledQuantity           float64  `json:"filledQuantity"`
	CanceledQuantity         float64  `json:"canceledQuantity"`
	Side                     string   `json:"side"`
	OrderType                string   `json:"orderType"`
	LimitPrice               *float64 `json:"limitPrice"`
	StopPrice                *float64 `json:"stopPrice"`
	IsAllOrNone              bool     `json:"isAllOrNone"`
	IsAnonymous              bool     `json:"isAnonymous"`
	IcebergQuantity          *float64 `json:"icebergQuantity"`
	MinQuantity              *float64 `json:"minQuantity"`
	AvgExecPrice             *float64 `json:"avgExecPrice"`
	LastExecPrice            *float64 `json:"lastExecPrice"`
	Source                   string   `json:"source"`
	TimeInForce              string   `json:"timeInForce"`
	GtdDate                  apiTime  `json:"gtdDate"`
	State                    string   `json:"state"`
	RejectionReason          string   `json:"rejectionReason"`
	ChainID                  int64    `json:"chainId"`
	CreationTime             apiTime  `json:"creationTime"`
	UpdateTime               apiTime  `json:"updateTime"`
	Notes                    string   `json:"notes"`
	PrimaryRoute             string   `json:"primaryRoute"`
	SecondaryRoute           string   `json:"secondaryRoute"`
	OrderRoute               string   `json:"orderRoute"`
	VenueHoldingOrder        string   `json:"venueHoldingOrder"`
	CommissionCharged        float64  `json:"comissionCharged"`
	ExchangeOrderID          string   `json:"exchangeOrderId"`
	IsSignificantShareHolder bool     `json:"isSignificantShareHolder"`
	IsInsider                bool     `json:"isInsider"`
	IsLimitOffsetInDollar    bool     `json:"isLimitOffsetInDollar"`
	UserID                   int64    `json:"userId"`
	PlacementCommission      *float64 `json:"placementCommission"`
	StrategyType             string   `json:"strategyType"`
	TriggerStopPrice         *float64 `json:"triggerStopPrice"`
}

// OrdersResponse is the payload of v1/accounts/{id}/orders.
type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

// Activity is an account ledger entry.
type Activity struct {
	TradeDate       apiTime `json:"tradeDate"`
	TransactionDate apiTime `json:"transactionDate"`
	SettlementDate  apiTime `json:"settlementDate"`
	Action          string  `json:"action"`
	Symbol          string  `json:"symbol"`
	SymbolID        int64   `json:"symbolId"`
	Description     string  `json:"description"`
	Currency        string  `json:"currency"`
	Quantity        float64 `json:"quantity"`
	Price           float64 `json:"price"`
	GrossAmount     float64 `json:"grossAmount"`
	Commission      float64 `json:"commission"`
	NetAmount       float64 `json:"netAmount"`
	Type            string  `json:"type"`
}

// ActivitiesResponse is the payload of v1/accounts/{id}/activities.
type ActivitiesResponse struct {
	Activities []Activity `json:"activities"`
}

// Market describes a supported exchange.
type Market struct {
	Name                 string   `json:"name"`
	TradingVenues        []string `json:"tradingVenues"`
	DefaultTradingVenue  string   `json:"defaultTradingVenue"`
	PrimaryOrderRoutes   []string `json:"primaryOrderRoutes"`
	SecondaryOrderRoutes []string `json:"secondaryOrderRoutes"`
	Level1Feeds          []string `json:"level1Feeds"`
	Level2Feeds          []string `json:"level2Feeds"`
	ExtendedStartTime    apiTime  `json:"extendedStartTime"`
	StartTime            apiTime  `json:"startTime"`
	EndTime              apiTime  `json:"endTime"`
	ExtendedEndTime      apiTime  `json:"extendedEndTime"`
	Currency             string   `json:"currency"`
	SnapQuotesLimit      int      `json:"snapQuotesLimit"`
}

// MarketsResponse is the payload of v1/markets.
type MarketsResponse struct {
	Markets []Market `json:"markets"`
}

// SearchResult is an entry of v1/symbols/search.
type SearchResult struct {
	Symbol          string `json:"symbol"`
	SymbolID        int64  `json:"symbolId"`
	Description     string `json:"description"`
	SecurityType    string `json:"securityType"`
	ListingExchange string `json:"listingExchange"`
	IsQuotable      bool   `json:"isQuotable"`
	IsTradable      bool   `json:"isTradable"`
	Currency        string `json:"currency"`
}

// SearchResponse is the payload of v1/symbols/search.
type SearchResponse struct {
	Symbols []SearchResult `json:"symbols"`
}

// SymbolDetail is the full symbol payload of v1/symbols.
type SymbolDetail struct {
	Symbol             string   `json:"symbol"`
	SymbolID           int64    `json:"symbolId"`
	PrevDayClosePrice  *float64 `json:"prevDayClosePrice"`
	HighPrice52        *float64 `json:"highPrice52"`
	LowPrice52         *float64 `json:"lowPrice52"`
	AverageVol3Months  *int64   `json:"averageVol3Months"`
	AverageVol20Days   *int64   `json:"averageVol20Days"`
	OutstandingShares  *int64   `json:"outstandingShares"`
	EPS                *float64 `json:"eps"`
	PE                 *float64 `json:"pe"`
	Dividend           *float64 `json:"dividend"`
	Yield              *float64 `json:"yield"`
	ExDate             apiTime  `json:"exDate"`
	MarketCap          *int64   `json:"marketCap"`
	TradeUnit          int      `json:"tradeUnit"`
	OptionType         *string  `json:"optionType"`
	OptionDurationType *string  `json:"optionDurationType"`
	OptionRoot         string   `json:"optionRoot"`
	OptionExerciseType *string  `json:"optionExerciseType"`
	ListingExchange    string   `json:"listingExchange"`
	Description        string   `json:"description"`
	SecurityType       string   `json:"securityType"`
	OptionExpiryDate   apiTime  `json:"optionExpiryDate"`
	DividendDate       apiTime  `json:"dividendDate"`
	OptionStrikePrice  *float64 `json:"optionStrikePrice"`
	IsTradable         bool     `json:"isTradable"`
	IsQuotable         bool     `json:"isQuotable"`
	HasOptions         bool     `json:"hasOptions"`
	Currency           string   `json:"currency"`
	MinTicks           []struct {
		Pivot   float64 `json:"pivot"`
		MinTick float64 `json:"minTick"`
	} `json:"minTicks"`
	IndustrySector   string `json:"industrySector"`
	IndustryGroup    string `json:"industryGroup"`
	IndustrySubgroup string `json:"industrySubgroup"`
}

// SymbolsResponse is the payload of v1/symbols and v1/symbols/{id}.
type SymbolsResponse struct {
	Symbols []SymbolDetail `json:"symbols"`
}

// CandlePayload is one bar of v1/markets/candles/{id}.
type CandlePayload struct {
	Start  apiTime  `json:"start"`
	End    apiTime  `json:"end"`
	Low    float64  `json:"low"`
	High   float64  `json:"high"`
	Open   float64  `json:"open"`
	Close  float64  `json:"close"`
	Volume float64  `json:"volume"`
	VWAP   *float64 `json:"VWAP"`
}

// CandlesResponse is the payload of v1/markets/candles/{id}.
type CandlesResponse struct {
	Candles []CandlePayload `json:"candles"`
}

// Quote is a level 1 quote.
type Quote struct {
	Symbol         string   `json:"symbol"`
	SymbolID       int64    `json:"symbolId"`
	Tier           string   `json:"tier"`
	BidPrice       *float64 `json:"bidPrice"`
	BidSize        int64    `json:"bidSize"`
	AskPrice       *float64 `json:"askPrice"`
	AskSize        int64    `json:"askSize"`
	LastTradePrice *float64 `json:"lastTradePrice"`
	LastTradeSize  int64    `json:"lastTradeSize"`
	LastTradeTick  string   `json:"lastTradeTick"`
	LastTradeTime  apiTime  `json:"lastTradeTime"`
	Volume         int64    `json:"volume"`
	OpenPrice      *float64 `json:"openPrice"`
	HighPrice      *float64 `json:"highPrice"`
	LowPrice       *float64 `json:"lowPrice"`
	Delay          int      `json:"delay"`
	IsHalted       bool     `json:"isHalted"`
}

// QuotesResponse is the payload of v1/markets/quotes.
type QuotesResponse struct {
	Quotes []Quote `json:"quotes"`
}

// apiErrorBody is the error envelope returned on non-2xx responses.
type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
