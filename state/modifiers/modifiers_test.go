package modifiers

import (
	"runtime"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/lukechampine/freeze"

	"stockfolio/state/actions"
	"stockfolio/state/data"
)

// supportedOS prevents freeze-based tests from running on non-unix systems.
// Windows cannot freeze memory.
func supportedOS() bool {
	switch runtime.GOOS {
	case "linux", "darwin":
		return true
	}
	return false
}

func instrument(symbol string, price float64) data.StockInstrument {
	return data.StockInstrument{Symbol: symbol, Name: symbol + " Inc", Price: price, ChangePercent: "+0.00%"}
}

func TestLoadCycleSetsLoadingState(t *testing.T) {
	s := data.Initial()

	got := Portfolio(s, actions.LoadPortfolio()).(data.State)
	if diff := pretty.Compare(data.LoadingState{IsLoading: true}, got.PortfolioLoading); diff != "" {
		t.Errorf("LoadPortfolio: -want/+got:\n%s", diff)
	}

	p := data.Portfolio{TotalEquity: 100}
	got = Portfolio(got, actions.LoadPortfolioSuccess(p)).(data.State)
	if got.Portfolio == nil || got.Portfolio.TotalEquity != 100 {
		t.Errorf("LoadPortfolioSuccess: portfolio not replaced: %+v", got.Portfolio)
	}
	if diff := pretty.Compare(data.LoadingState{}, got.PortfolioLoading); diff != "" {
		t.Errorf("LoadPortfolioSuccess: -want/+got:\n%s", diff)
	}

	got = Portfolio(got, actions.LoadPortfolioFailure("backend down")).(data.State)
	if diff := pretty.Compare(data.LoadingState{Error: "backend down"}, got.PortfolioLoading); diff != "" {
		t.Errorf("LoadPortfolioFailure: -want/+got:\n%s", diff)
	}
	// Prior data stays on failure.
	if got.Portfolio == nil || got.Portfolio.TotalEquity != 100 {
		t.Errorf("LoadPortfolioFailure: prior portfolio was lost: %+v", got.Portfolio)
	}
}

func TestFailureIsolation(t *testing.T) {
	s := data.Initial()
	s.Stocks = []data.StockInstrument{instrument("AAPL", 100)}
	s.TrendingStocks = []data.TrendingStock{{ID: 1, Symbol: "AAPL"}}
	p := data.Portfolio{TotalEquity: 500}
	s.Portfolio = &p

	got := Portfolio(s, actions.LoadPortfolioFailure("boom")).(data.State)

	if diff := pretty.Compare(s.Stocks, got.Stocks); diff != "" {
		t.Errorf("stocks changed by a portfolio failure: -want/+got:\n%s", diff)
	}
	if diff := pretty.Compare(s.TrendingStocks, got.TrendingStocks); diff != "" {
		t.Errorf("trending changed by a portfolio failure: -want/+got:\n%s", diff)
	}
	if got.Portfolio != s.Portfolio {
		t.Errorf("portfolio data replaced by a failure action")
	}
}

func TestModifierPurity(t *testing.T) {
	s := data.Initial()
	s.RecentSearches = []data.SearchResult{{Stock: instrument("TSLA", 200), SearchType: data.SearchTypeRecent}}

	a := actions.AddToRecentSearches(instrument("AAPL", 100))
	first := RecentSearches(s, a).(data.State)
	second := RecentSearches(s, a).(data.State)

	if diff := pretty.Compare(first, second); diff != "" {
		t.Errorf("equal inputs produced unequal outputs: -want/+got:\n%s", diff)
	}
	if diff := pretty.Compare([]data.SearchResult{{Stock: instrument("TSLA", 200), SearchType: data.SearchTypeRecent}}, s.RecentSearches); diff != "" {
		t.Errorf("input state was mutated: -want/+got:\n%s", diff)
	}
}

func TestSearchTransitions(t *testing.T) {
	s := data.Initial()

	got := Search(s, actions.SearchStocks("AAPL")).(data.State)
	if got.SearchQuery != "AAPL" || !got.SearchLoading.IsLoading {
		t.Errorf("SearchStocks: got query %q loading %v", got.SearchQuery, got.SearchLoading)
	}

	results := []data.SearchResult{{Stock: instrument("AAPL", 100), SearchType: data.SearchTypeSearch}}
	got = Search(got, actions.SearchStocksSuccess(results)).(data.State)
	if diff := pretty.Compare(results, got.SearchResults); diff != "" {
		t.Errorf("SearchStocksSuccess: -want/+got:\n%s", diff)
	}
	if got.SearchLoading.IsLoading {
		t.Errorf("SearchStocksSuccess left loading set")
	}

	got = Search(got, actions.SetSearchQuery("AAP")).(data.State)
	if got.SearchQuery != "AAP" {
		t.Errorf("SetSearchQuery: got %q, want AAP", got.SearchQuery)
	}
}

func TestClearSearchResultsIsIdempotent(t *testing.T) {
	s := data.Initial()
	s.SearchQuery = "AAPL"
	s.SearchResults = []data.SearchResult{{Stock: instrument("AAPL", 100), SearchType: data.SearchTypeSearch}}
	s.SearchLoading = data.LoadingState{IsLoading: true}

	once := Search(s, actions.ClearSearchResults()).(data.State)
	twice := Search(once, actions.ClearSearchResults()).(data.State)

	if diff := pretty.Compare(once, twice); diff != "" {
		t.Errorf("double clear diverged from single clear: -want/+got:\n%s", diff)
	}
	if len(once.SearchResults) != 0 || once.SearchQuery != "" {
		t.Errorf("clear: got results %v query %q", once.SearchResults, once.SearchQuery)
	}
	// Clearing is independent of the loading state.
	if !once.SearchLoading.IsLoading {
		t.Errorf("clear reset the loading state")
	}
}

func TestAddToRecentSearches(t *testing.T) {
	if !supportedOS() {
		return
	}

	recents := []data.SearchResult{
		{Stock: instrument("TSLA", 200), SearchType: data.SearchTypeRecent},
		{Stock: instrument("AAPL", 100), SearchType: data.SearchTypeRecent},
	}
	// This validates that we didn't mutate the list.
	recents = freeze.Slice(recents).([]data.SearchResult)
	s := data.Initial()
	s.RecentSearches = recents

	got := RecentSearches(s, actions.AddToRecentSearches(instrument("AAPL", 100))).(data.State)

	want := []data.SearchResult{
		{Stock: instrument("AAPL", 100), SearchType: data.SearchTypeRecent},
		{Stock: instrument("TSLA", 200), SearchType: data.SearchTypeRecent},
	}
	if diff := pretty.Compare(want, got.RecentSearches); diff != "" {
		t.Errorf("TestAddToRecentSearches: -want/+got:\n%s", diff)
	}
}

func TestRecentSearchesBounded(t *testing.T) {
	s := data.Initial()
	for _, sym := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		s = RecentSearches(s, actions.AddToRecentSearches(instrument(sym, 1))).(data.State)
	}

	if len(s.RecentSearches) != maxRecentSearches {
		t.Fatalf("recents length: got %d, want %d", len(s.RecentSearches), maxRecentSearches)
	}

	var symbols []string
	for _, r := range s.RecentSearches {
		symbols = append(symbols, r.Stock.Symbol)
	}
	if diff := pretty.Compare([]string{"G", "F", "E", "D", "C"}, symbols); diff != "" {
		t.Errorf("recents order: -want/+got:\n%s", diff)
	}
}

func TestPlaceOrderMergesExistingHolding(t *testing.T) {
	if !supportedOS() {
		return
	}

	holdings := []data.PortfolioHolding{
		{Stock: instrument("AAPL", 100), Shares: 10, CurrentValue: 1000},
	}
	// This validates that we didn't mutate the holdings.
	holdings = freeze.Slice(holdings).([]data.PortfolioHolding)
	p := data.Portfolio{TotalEquity: 5000, Holdings: holdings}
	s := data.Initial()
	s.Portfolio = &p

	order := data.BuyOrder{
		Stock:          instrument("AAPL", 110),
		Shares:         5,
		OrderType:      data.Market,
		EstimatedTotal: 550,
	}
	got := Orders(s, actions.PlaceOrderSuccess(order)).(data.State)

	if len(got.Portfolio.Holdings) != 1 {
		t.Fatalf("holdings count: got %d, want 1", len(got.Portfolio.Holdings))
	}
	h := got.Portfolio.Holdings[0]
	if h.Shares != 15 || h.CurrentValue != 1650 {
		t.Errorf("merged holding: got shares %g value %g, want 15 and 1650", h.Shares, h.CurrentValue)
	}
	if got.Portfolio.TotalEquity != 5550 {
		t.Errorf("total equity: got %g, want 5550", got.Portfolio.TotalEquity)
	}
	if !got.BuyOrderSuccess || got.PendingBuyOrder != nil || got.BuyOrderLoading.IsLoading {
		t.Errorf("order flags: success %v pending %v loading %v", got.BuyOrderSuccess, got.PendingBuyOrder, got.BuyOrderLoading)
	}
}

func TestPlaceOrderAppendsNewHolding(t *testing.T) {
	p := data.Portfolio{TotalEquity: 5000, Holdings: []data.PortfolioHolding{}}
	s := data.Initial()
	s.Portfolio = &p

	order := data.BuyOrder{
		Stock:          instrument("AAPL", 110),
		Shares:         5,
		OrderType:      data.Market,
		EstimatedTotal: 550,
	}
	got := Orders(s, actions.PlaceOrderSuccess(order)).(data.State)

	want := []data.PortfolioHolding{
		{Stock: instrument("AAPL", 110), Shares: 5, CurrentValue: 550},
	}
	if diff := pretty.Compare(want, got.Portfolio.Holdings); diff != "" {
		t.Errorf("TestPlaceOrderAppendsNewHolding: -want/+got:\n%s", diff)
	}
	if got.Portfolio.TotalEquity != 5550 {
		t.Errorf("total equity: got %g, want 5550", got.Portfolio.TotalEquity)
	}
}

func TestPlaceOrderSuccessWithoutPortfolio(t *testing.T) {
	s := data.Initial()

	order := data.BuyOrder{Stock: instrument("AAPL", 110), Shares: 5, EstimatedTotal: 550}
	got := Orders(s, actions.PlaceOrderSuccess(order)).(data.State)

	if got.Portfolio != nil {
		t.Errorf("portfolio materialized out of nothing: %+v", got.Portfolio)
	}
	if !got.BuyOrderSuccess || got.BuyOrderLoading.IsLoading {
		t.Errorf("order flags: success %v loading %v, want true and false", got.BuyOrderSuccess, got.BuyOrderLoading.IsLoading)
	}
}

func TestPlaceOrderFailureAndClear(t *testing.T) {
	s := data.Initial()
	order := data.BuyOrder{Stock: instrument("AAPL", 110), Shares: 5, EstimatedTotal: 550}

	got := Orders(s, actions.PlaceOrder(order)).(data.State)
	if !got.BuyOrderLoading.IsLoading || got.PendingBuyOrder == nil {
		t.Fatalf("PlaceOrder: loading %v pending %v", got.BuyOrderLoading, got.PendingBuyOrder)
	}

	got = Orders(got, actions.PlaceOrderFailure("rejected")).(data.State)
	if diff := pretty.Compare(data.LoadingState{Error: "rejected"}, got.BuyOrderLoading); diff != "" {
		t.Errorf("PlaceOrderFailure: -want/+got:\n%s", diff)
	}
	if got.BuyOrderSuccess {
		t.Errorf("PlaceOrderFailure left success set")
	}

	got = Orders(got, actions.ClearBuyOrder()).(data.State)
	if got.PendingBuyOrder != nil || got.BuyOrderSuccess {
		t.Errorf("ClearBuyOrder: pending %v success %v", got.PendingBuyOrder, got.BuyOrderSuccess)
	}
	if diff := pretty.Compare(data.LoadingState{}, got.BuyOrderLoading); diff != "" {
		t.Errorf("ClearBuyOrder loading: -want/+got:\n%s", diff)
	}
}

func TestUnhandledActionIsIdentity(t *testing.T) {
	s := data.Initial()
	s.SearchQuery = "AAPL"

	got := Search(s, actions.LoadPortfolio()).(data.State)
	if diff := pretty.Compare(s, got); diff != "" {
		t.Errorf("unhandled action changed state: -want/+got:\n%s", diff)
	}
}
