// Package selectors derives read-only views from the state. Each selector is
// memoized on the identity of its inputs: it recomputes only when an input
// slice was replaced since the previous call, otherwise it returns the
// previously computed value, reference included. The memo holds the input
// slices it keyed on, which keeps their backing arrays alive; the identity
// comparison can therefore never alias a recycled allocation.
//
// Selectors are pure with respect to the state; they never mutate it.
package selectors

import (
	"sort"
	"sync"

	"stockfolio/state/data"
)

// topCount is how many instruments the volume leaderboard shows.
const topCount = 3

// sameRef reports whether two slices are the same slice: same length, same
// backing array. All empty slices are interchangeable for our views.
func sameRef[T any](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// TopByVolume selects the top instruments by traded volume. Instruments
// without a reported volume are excluded. Ties keep their relative order from
// the instrument list.
type TopByVolume struct {
	mu     sync.Mutex
	init   bool
	stocks []data.StockInstrument
	out    []data.StockInstrument
}

// Select returns at most topCount instruments, highest volume first.
func (t *TopByVolume) Select(s data.State) []data.StockInstrument {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.init && sameRef(s.Stocks, t.stocks) {
		return t.out
	}

	withVolume := make([]data.StockInstrument, 0, len(s.Stocks))
	for _, st := range s.Stocks {
		if st.Volume != nil {
			withVolume = append(withVolume, st)
		}
	}
	sort.SliceStable(withVolume, func(i, j int) bool {
		return *withVolume[i].Volume > *withVolume[j].Volume
	})
	if len(withVolume) > topCount {
		withVolume = withVolume[:topCount]
	}

	t.init = true
	t.stocks = s.Stocks
	t.out = withVolume
	return t.out
}

// TrendingDetails joins the trending-id list onto full instrument records by
// symbol. Entries with no match in the loaded instrument list are dropped.
// The result preserves the trending list's order.
type TrendingDetails struct {
	mu       sync.Mutex
	init     bool
	trending []data.TrendingStock
	stocks   []data.StockInstrument
	out      []data.StockInstrument
}

// Select returns the trending instruments with full details.
func (t *TrendingDetails) Select(s data.State) []data.StockInstrument {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.init && sameRef(s.TrendingStocks, t.trending) && sameRef(s.Stocks, t.stocks) {
		return t.out
	}

	bySymbol := make(map[string]data.StockInstrument, len(s.Stocks))
	for _, st := range s.Stocks {
		bySymbol[st.Symbol] = st
	}

	out := make([]data.StockInstrument, 0, len(s.TrendingStocks))
	for _, tr := range s.TrendingStocks {
		if st, ok := bySymbol[tr.Symbol]; ok {
			out = append(out, st)
		}
	}

	t.init = true
	t.trending = s.TrendingStocks
	t.stocks = s.Stocks
	t.out = out
	return t.out
}

// DashboardView is the combined view backing the dashboard screen.
type DashboardView struct {
	// Portfolio is nil until the first successful portfolio load.
	Portfolio *data.Portfolio
	// Trending is the trending list joined with instrument details.
	Trending []data.StockInstrument
	// IsLoading is true while the portfolio or the trending list loads.
	IsLoading bool
}

// Dashboard composes the portfolio, the trending join and the two loading
// flags into a single view.
type Dashboard struct {
	trending TrendingDetails

	mu        sync.Mutex
	init      bool
	portfolio *data.Portfolio
	joined    []data.StockInstrument
	loading   bool
	out       DashboardView
}

// Select returns the dashboard view for s.
func (d *Dashboard) Select(s data.State) DashboardView {
	trending := d.trending.Select(s)
	loading := s.PortfolioLoading.IsLoading || s.TrendingLoading.IsLoading

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.init && d.portfolio == s.Portfolio && sameRef(trending, d.joined) && d.loading == loading {
		return d.out
	}

	d.init = true
	d.portfolio = s.Portfolio
	d.joined = trending
	d.loading = loading
	d.out = DashboardView{Portfolio: s.Portfolio, Trending: trending, IsLoading: loading}
	return d.out
}

// SearchView is the combined view backing the search screen.
type SearchView struct {
	Results   []data.SearchResult
	Recents   []data.SearchResult
	IsLoading bool
	Query     string
}

// SearchData combines search results, recent searches, the search loading
// flag and the current query string.
type SearchData struct {
	mu      sync.Mutex
	init    bool
	results []data.SearchResult
	recents []data.SearchResult
	loading bool
	query   string
	out     SearchView
}

// Select returns the search view for s.
func (sd *SearchData) Select(s data.State) SearchView {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	loading := s.SearchLoading.IsLoading
	if sd.init && sameRef(s.SearchResults, sd.results) && sameRef(s.RecentSearches, sd.recents) &&
		loading == sd.loading && s.SearchQuery == sd.query {
		return sd.out
	}

	sd.init = true
	sd.results = s.SearchResults
	sd.recents = s.RecentSearches
	sd.loading = loading
	sd.query = s.SearchQuery
	sd.out = SearchView{
		Results:   s.SearchResults,
		Recents:   s.RecentSearches,
		IsLoading: loading,
		Query:     s.SearchQuery,
	}
	return sd.out
}
