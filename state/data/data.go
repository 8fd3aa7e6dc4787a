// Package data holds the state object and the domain types kept in the
// application's store.Store.
package data

// DayRange is the low/high price band an instrument traded in today.
type DayRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// StockInstrument is an immutable snapshot of a tradable security. Snapshots
// are replaced wholesale on reload, never patched field by field.
type StockInstrument struct {
	// Symbol is the unique key for the instrument.
	Symbol string `json:"symbol"`
	// Name is the full name of the instrument. May be empty for sources that
	// do not carry it (the portfolio endpoint).
	Name string `json:"name"`
	// Price is the current price.
	Price float64 `json:"price"`
	// ChangePercent is the day's move, preformatted ("+1.25%" / "-0.40%").
	ChangePercent string `json:"changePercent"`
	// Logo is a URL to the instrument's logo, if known.
	Logo string `json:"logo,omitempty"`
	// MarketCap is the market capitalization in millions.
	MarketCap float64 `json:"marketCap,omitempty"`
	// Volume is the day's traded volume. Nil when the source does not report
	// volume for this instrument.
	Volume *float64 `json:"volume,omitempty"`
	// DayRange is the day's trading band, if known.
	DayRange *DayRange `json:"dayRange,omitempty"`
}

// TrendingStock identifies an instrument on the trending list. It carries no
// details; those are joined from the loaded instrument list by symbol.
type TrendingStock struct {
	ID     int    `json:"id"`
	Symbol string `json:"symbol"`
}

// PortfolioHolding is a position the user owns. A Portfolio holds at most one
// PortfolioHolding per symbol.
type PortfolioHolding struct {
	Stock StockInstrument `json:"stock"`
	// Shares held. Fractional shares are allowed.
	Shares float64 `json:"shares"`
	// CurrentValue is the market value of the position.
	CurrentValue float64 `json:"currentValue"`
}

// Portfolio is the user's account. TotalEquity is maintained through the
// order-fulfillment path, not recomputed from Holdings on read.
type Portfolio struct {
	TotalEquity float64            `json:"totalEquity"`
	Holdings    []PortfolioHolding `json:"holdings"`
}

// SearchType tags the provenance of a SearchResult.
type SearchType string

const (
	// SearchTypeSearch marks a result produced by a live search.
	SearchTypeSearch SearchType = "search"
	// SearchTypeRecent marks a result restored from the recent-search list.
	SearchTypeRecent SearchType = "recent"
)

// SearchResult wraps an instrument with its provenance.
type SearchResult struct {
	Stock      StockInstrument `json:"stock"`
	SearchType SearchType      `json:"searchType"`
}

// OrderType is the kind of a BuyOrder.
type OrderType string

const (
	// Market orders execute at the current price.
	Market OrderType = "market"
	// Limit orders execute at LimitPrice or better.
	Limit OrderType = "limit"
)

// BuyOrder is a purchase request for an instrument.
type BuyOrder struct {
	Stock      StockInstrument `json:"stock"`
	Shares     float64         `json:"shares"`
	OrderType  OrderType       `json:"orderType"`
	LimitPrice float64         `json:"limitPrice,omitempty"`
	// EstimatedTotal is the cost estimate shown to the user when the order
	// was placed. It, not Shares*Price, is added to TotalEquity on fill.
	EstimatedTotal float64 `json:"estimatedTotal"`
}

// LoadingState is the transient status of one async resource. It is never
// persisted.
type LoadingState struct {
	IsLoading bool `json:"isLoading"`
	// Error is the last failure message for the resource, or "" for none.
	Error string `json:"error,omitempty"`
}

// State is the aggregate state kept in the store. Each exported field is an
// independently versioned slice of the application state; subscribe to a
// field name (or store.Any) to observe it.
type State struct {
	// Portfolio is nil until the first successful load.
	Portfolio        *Portfolio
	PortfolioLoading LoadingState

	Stocks        []StockInstrument
	StocksLoading LoadingState

	TrendingStocks  []TrendingStock
	TrendingLoading LoadingState

	SearchResults  []SearchResult
	RecentSearches []SearchResult
	SearchLoading  LoadingState
	SearchQuery    string

	PendingBuyOrder *BuyOrder
	BuyOrderLoading LoadingState
	BuyOrderSuccess bool
}

// Initial returns the state the store is created with: all lists empty, no
// resource loading, no errors.
func Initial() State {
	return State{
		Stocks:         []StockInstrument{},
		TrendingStocks: []TrendingStock{},
		SearchResults:  []SearchResult{},
		RecentSearches: []SearchResult{},
	}
}

// Float is a convenience for building optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
