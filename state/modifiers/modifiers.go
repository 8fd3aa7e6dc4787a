// Package modifiers holds all the store.Modifiers for the application state.
// Every modifier works on copies only; the incoming state is never mutated.
package modifiers

import (
	"stockfolio/state/actions"
	"stockfolio/state/data"
	"stockfolio/store"
)

// maxRecentSearches bounds the recent-search list.
const maxRecentSearches = 5

// All is a store.Modifiers made up of all Modifier(s) in this file.
var All = store.NewModifiers(Portfolio, Trending, Stocks, Search, RecentSearches, Orders)

// Portfolio handles the portfolio load cycle.
func Portfolio(state interface{}, action store.Action) interface{} {
	s := state.(data.State)

	switch action.Type {
	case actions.ActLoadPortfolio:
		s.PortfolioLoading = data.LoadingState{IsLoading: true}
	case actions.ActLoadPortfolioSuccess:
		p := action.Update.(data.Portfolio)
		s.Portfolio = &p
		s.PortfolioLoading = data.LoadingState{}
	case actions.ActLoadPortfolioFailure:
		// Prior portfolio data is left untouched.
		s.PortfolioLoading = data.LoadingState{Error: action.Update.(string)}
	}
	return s
}

// Trending handles the trending-list load cycle.
func Trending(state interface{}, action store.Action) interface{} {
	s := state.(data.State)

	switch action.Type {
	case actions.ActLoadTrending:
		s.TrendingLoading = data.LoadingState{IsLoading: true}
	case actions.ActLoadTrendingSuccess:
		s.TrendingStocks = action.Update.([]data.TrendingStock)
		s.TrendingLoading = data.LoadingState{}
	case actions.ActLoadTrendingFailure:
		s.TrendingLoading = data.LoadingState{Error: action.Update.(string)}
	}
	return s
}

// Stocks handles the instrument-list load cycle.
func Stocks(state interface{}, action store.Action) interface{} {
	s := state.(data.State)

	switch action.Type {
	case actions.ActLoadStocks:
		s.StocksLoading = data.LoadingState{IsLoading: true}
	case actions.ActLoadStocksSuccess:
		s.Stocks = action.Update.([]data.StockInstrument)
		s.StocksLoading = data.LoadingState{}
	case actions.ActLoadStocksFailure:
		s.StocksLoading = data.LoadingState{Error: action.Update.(string)}
	}
	return s
}

// Search handles the search cycle and the query string.
func Search(state interface{}, action store.Action) interface{} {
	s := state.(data.State)

	switch action.Type {
	case actions.ActSearchStocks:
		s.SearchQuery = action.Update.(string)
		s.SearchLoading = data.LoadingState{IsLoading: true}
	case actions.ActSearchStocksSuccess:
		s.SearchResults = action.Update.([]data.SearchResult)
		s.SearchLoading = data.LoadingState{}
	case actions.ActSearchStocksFailure:
		s.SearchLoading = data.LoadingState{Error: action.Update.(string)}
	case actions.ActClearSearchResults:
		// Independent of the loading state.
		s.SearchResults = []data.SearchResult{}
		s.SearchQuery = ""
	case actions.ActSetSearchQuery:
		s.SearchQuery = action.Update.(string)
	}
	return s
}

// RecentSearches handles the bounded recency list: deduplicated by symbol,
// most recent first, at most maxRecentSearches entries.
func RecentSearches(state interface{}, action store.Action) interface{} {
	s := state.(data.State)

	switch action.Type {
	case actions.ActLoadRecentSearchesSuccess:
		s.RecentSearches = action.Update.([]data.SearchResult)
	case actions.ActAddToRecentSearches:
		stock := action.Update.(data.StockInstrument)

		updated := make([]data.SearchResult, 0, len(s.RecentSearches)+1)
		updated = append(updated, data.SearchResult{Stock: stock, SearchType: data.SearchTypeRecent})
		for _, r := range s.RecentSearches {
			if r.Stock.Symbol == stock.Symbol {
				continue
			}
			updated = append(updated, r)
		}
		if len(updated) > maxRecentSearches {
			updated = updated[:maxRecentSearches]
		}
		s.RecentSearches = updated
	}
	return s
}

// Orders handles the buy-order cycle, including folding a filled order into
// the portfolio.
func Orders(state interface{}, action store.Action) interface{} {
	s := state.(data.State)

	switch action.Type {
	case actions.ActPlaceOrder:
		order := action.Update.(data.BuyOrder)
		s.PendingBuyOrder = &order
		s.BuyOrderLoading = data.LoadingState{IsLoading: true}
	case actions.ActPlaceOrderSuccess:
		order := action.Update.(data.BuyOrder)
		s.BuyOrderLoading = data.LoadingState{}
		s.BuyOrderSuccess = true

		// Without a loaded portfolio there is nothing to fold the fill into.
		if s.Portfolio == nil {
			return s
		}

		holdings := make([]data.PortfolioHolding, len(s.Portfolio.Holdings))
		copy(holdings, s.Portfolio.Holdings)

		found := false
		for i, h := range holdings {
			if h.Stock.Symbol != order.Stock.Symbol {
				continue
			}
			h.Shares += order.Shares
			h.CurrentValue = h.Shares * order.Stock.Price
			holdings[i] = h
			found = true
			break
		}
		if !found {
			holdings = append(holdings, data.PortfolioHolding{
				Stock:        order.Stock,
				Shares:       order.Shares,
				CurrentValue: order.Shares * order.Stock.Price,
			})
		}

		// TotalEquity moves by the order's estimate, not by a recompute of
		// holdings; recomputing here would double-count valuation drift
		// within a single transaction.
		p := data.Portfolio{
			TotalEquity: s.Portfolio.TotalEquity + order.EstimatedTotal,
			Holdings:    holdings,
		}
		s.Portfolio = &p
		s.PendingBuyOrder = nil
	case actions.ActPlaceOrderFailure:
		s.BuyOrderLoading = data.LoadingState{Error: action.Update.(string)}
		s.BuyOrderSuccess = false
	case actions.ActClearBuyOrder:
		s.PendingBuyOrder = nil
		s.BuyOrderSuccess = false
		s.BuyOrderLoading = data.LoadingState{}
	}
	return s
}
