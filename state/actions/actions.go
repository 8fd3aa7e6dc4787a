// Package actions details the store.Actions that the modifiers use to update
// the store.
package actions

import (
	"stockfolio/state/data"
	"stockfolio/store"
)

const (
	// ActLoadPortfolio requests a reload of the user's portfolio.
	ActLoadPortfolio = iota
	// ActLoadPortfolioSuccess replaces the portfolio with a loaded one.
	ActLoadPortfolioSuccess
	// ActLoadPortfolioFailure records a portfolio load failure.
	ActLoadPortfolioFailure

	// ActLoadTrending requests a reload of the trending list.
	ActLoadTrending
	// ActLoadTrendingSuccess replaces the trending list.
	ActLoadTrendingSuccess
	// ActLoadTrendingFailure records a trending load failure.
	ActLoadTrendingFailure

	// ActLoadStocks requests a reload of the instrument list.
	ActLoadStocks
	// ActLoadStocksSuccess replaces the instrument list.
	ActLoadStocksSuccess
	// ActLoadStocksFailure records an instrument load failure.
	ActLoadStocksFailure

	// ActSearchStocks starts a search for a query string.
	ActSearchStocks
	// ActSearchStocksSuccess replaces the search results.
	ActSearchStocksSuccess
	// ActSearchStocksFailure records a search failure.
	ActSearchStocksFailure
	// ActClearSearchResults empties the search results and the query.
	ActClearSearchResults
	// ActSetSearchQuery updates the query string without starting a search.
	ActSetSearchQuery

	// ActLoadRecentSearches requests the recent-search list from storage.
	ActLoadRecentSearches
	// ActLoadRecentSearchesSuccess replaces the recent-search list.
	ActLoadRecentSearchesSuccess
	// ActAddToRecentSearches records an instrument as recently searched.
	ActAddToRecentSearches

	// ActPlaceOrder submits a buy order.
	ActPlaceOrder
	// ActPlaceOrderSuccess records a filled order and folds it into the
	// portfolio.
	ActPlaceOrderSuccess
	// ActPlaceOrderFailure records an order failure.
	ActPlaceOrderFailure
	// ActClearBuyOrder resets the order flow back to idle.
	ActClearBuyOrder
)

// LoadPortfolio requests a reload of the user's portfolio.
func LoadPortfolio() store.Action {
	return store.Action{Type: ActLoadPortfolio}
}

// LoadPortfolioSuccess replaces the portfolio wholesale.
func LoadPortfolioSuccess(p data.Portfolio) store.Action {
	return store.Action{Type: ActLoadPortfolioSuccess, Update: p}
}

// LoadPortfolioFailure records why the portfolio could not be loaded.
func LoadPortfolioFailure(err string) store.Action {
	return store.Action{Type: ActLoadPortfolioFailure, Update: err}
}

// LoadTrending requests a reload of the trending list.
func LoadTrending() store.Action {
	return store.Action{Type: ActLoadTrending}
}

// LoadTrendingSuccess replaces the trending list wholesale.
func LoadTrendingSuccess(stocks []data.TrendingStock) store.Action {
	return store.Action{Type: ActLoadTrendingSuccess, Update: stocks}
}

// LoadTrendingFailure records why the trending list could not be loaded.
func LoadTrendingFailure(err string) store.Action {
	return store.Action{Type: ActLoadTrendingFailure, Update: err}
}

// LoadStocks requests a reload of the instrument list.
func LoadStocks() store.Action {
	return store.Action{Type: ActLoadStocks}
}

// LoadStocksSuccess replaces the instrument list wholesale.
func LoadStocksSuccess(stocks []data.StockInstrument) store.Action {
	return store.Action{Type: ActLoadStocksSuccess, Update: stocks}
}

// LoadStocksFailure records why the instrument list could not be loaded.
func LoadStocksFailure(err string) store.Action {
	return store.Action{Type: ActLoadStocksFailure, Update: err}
}

// SearchStocks starts a search for query.
func SearchStocks(query string) store.Action {
	return store.Action{Type: ActSearchStocks, Update: query}
}

// SearchStocksSuccess replaces the search results wholesale.
func SearchStocksSuccess(results []data.SearchResult) store.Action {
	return store.Action{Type: ActSearchStocksSuccess, Update: results}
}

// SearchStocksFailure records why the search failed.
func SearchStocksFailure(err string) store.Action {
	return store.Action{Type: ActSearchStocksFailure, Update: err}
}

// ClearSearchResults empties the search results and resets the query.
func ClearSearchResults() store.Action {
	return store.Action{Type: ActClearSearchResults}
}

// SetSearchQuery reflects the text the user has typed, independent of the
// debounced search itself.
func SetSearchQuery(query string) store.Action {
	return store.Action{Type: ActSetSearchQuery, Update: query}
}

// LoadRecentSearches requests the recent-search list from durable storage.
func LoadRecentSearches() store.Action {
	return store.Action{Type: ActLoadRecentSearches}
}

// LoadRecentSearchesSuccess replaces the recent-search list wholesale.
func LoadRecentSearchesSuccess(searches []data.SearchResult) store.Action {
	return store.Action{Type: ActLoadRecentSearchesSuccess, Update: searches}
}

// AddToRecentSearches records stock at the front of the recent-search list.
func AddToRecentSearches(stock data.StockInstrument) store.Action {
	return store.Action{Type: ActAddToRecentSearches, Update: stock}
}

// PlaceOrder submits order to the backend.
func PlaceOrder(order data.BuyOrder) store.Action {
	return store.Action{Type: ActPlaceOrder, Update: order}
}

// PlaceOrderSuccess folds the originally submitted order into the portfolio.
func PlaceOrderSuccess(order data.BuyOrder) store.Action {
	return store.Action{Type: ActPlaceOrderSuccess, Update: order}
}

// PlaceOrderFailure records why the order was rejected.
func PlaceOrderFailure(err string) store.Action {
	return store.Action{Type: ActPlaceOrderFailure, Update: err}
}

// ClearBuyOrder resets the order flow back to idle.
func ClearBuyOrder() store.Action {
	return store.Action{Type: ActClearBuyOrder}
}
