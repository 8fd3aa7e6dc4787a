// Package effects reacts to committed store actions with asynchronous work
// against the backend and the durable recent-search store, feeding results
// back into the store as further actions.
//
// The Runner observes the action stream through a store.Middleware tap. Each
// trigger kind has its own channel with a generation counter, assigned while
// the store's Perform lock is still held so generations follow commit order
// even though reactions run on their own goroutines. A dispatch is accepted
// only if its generation still matches the latest committed trigger for its
// channel, so a superseded request's late result never reaches the state
// ("last request wins"). Search triggers are additionally debounced and
// filtered for consecutive duplicates before any backend call is made.
//
// Every backend failure is converted into the matching *_failure action; the
// Runner never lets an error escape. Recent-search persistence is the one
// effect Stop() does not suppress: a committed update's save is flushed, not
// cancelled.
package effects

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"stockfolio/state/actions"
	"stockfolio/state/data"
	"stockfolio/store"
)

// Backend is the remote service the effects call. All methods honor ctx
// cancellation and return typed domain values.
type Backend interface {
	Portfolio(ctx context.Context) (data.Portfolio, error)
	Stocks(ctx context.Context) ([]data.StockInstrument, error)
	Trending(ctx context.Context) ([]data.TrendingStock, error)
	Search(ctx context.Context, query string) ([]data.SearchResult, error)
	PlaceOrder(ctx context.Context, order data.BuyOrder) error
}

// RecentStore is the durable home of the recent-search list.
type RecentStore interface {
	Load(ctx context.Context) ([]data.SearchResult, error)
	Save(ctx context.Context, searches []data.SearchResult) error
}

// Effect channels. One generation counter per channel keyed by trigger kind.
const (
	chanPortfolio = iota
	chanStocks
	chanTrending
	chanSearch
	chanRecents
	chanOrder
	numChans
)

// Defaults for Options fields left at zero.
const (
	DefaultSearchDebounce  = 300 * time.Millisecond
	DefaultRecentsMinDelay = 100 * time.Millisecond
	DefaultClearOrderDelay = 100 * time.Millisecond
)

// Options adjusts the Runner's timing. The zero value selects the defaults.
type Options struct {
	// SearchDebounce is the quiet time required before a search trigger
	// reaches the backend.
	SearchDebounce time.Duration
	// RecentsMinDelay is the minimum time a recent-search load takes, so the
	// first paint does not flicker.
	RecentsMinDelay time.Duration
	// ClearOrderDelay is how long the order-success state stays visible
	// before it self-resets.
	ClearOrderDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.SearchDebounce == 0 {
		o.SearchDebounce = DefaultSearchDebounce
	}
	if o.RecentsMinDelay == 0 {
		o.RecentsMinDelay = DefaultRecentsMinDelay
	}
	if o.ClearOrderDelay == 0 {
		o.ClearOrderDelay = DefaultClearOrderDelay
	}
	return o
}

// Runner translates trigger actions into backend calls and result actions.
type Runner struct {
	backend Backend
	recents RecentStore
	opts    Options

	st *store.Store

	ctx    context.Context
	cancel context.CancelFunc

	gens [numChans]uint64

	// saves tracks in-flight recent-search persistence. Stop() waits on it so
	// a committed update is never lost to teardown.
	saves sync.WaitGroup

	// mu protects searchTimer and lastIssued.
	mu          sync.Mutex
	searchTimer *time.Timer
	lastIssued  string
}

// New is the constructor for Runner. Start() must be called with the store
// before any action is performed.
func New(backend Backend, recents RecentStore, opts Options) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		backend: backend,
		recents: recents,
		opts:    opts.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start attaches the store the Runner dispatches result actions to.
func (r *Runner) Start(st *store.Store) {
	r.st = st
}

// Stop tears the Runner down: pending timers are cancelled, any dispatch from
// still-running effects is suppressed, and in-flight recent-search saves are
// flushed before Stop returns.
func (r *Runner) Stop() {
	r.cancel()

	r.mu.Lock()
	if r.searchTimer != nil {
		r.searchTimer.Stop()
	}
	r.mu.Unlock()

	r.saves.Wait()
}

// Middleware implements store.Middleware. It observes every committed action
// and hands it to the Runner without delaying the commit.
func (r *Runner) Middleware(args *store.MWArgs) (changedData interface{}, stop bool, err error) {
	action := args.Action
	committed := args.Committed

	// Perform's lock is still held here, so generations follow commit order
	// no matter how the reaction goroutines get scheduled.
	gen := r.admit(action)

	go func() {
		state, ok := <-committed
		if !ok || state.IsZero() { // The commit was vetoed.
			if action.Type == actions.ActAddToRecentSearches {
				r.saves.Done()
			}
			return
		}
		r.react(action, state, gen)
	}()
	args.WG.Done()
	return nil, false, nil
}

// admit assigns the generation an action's effect will run with. It must be
// called in commit order. Actions without an async result get no generation.
func (r *Runner) admit(a store.Action) uint64 {
	switch a.Type {
	case actions.ActLoadPortfolio:
		return r.next(chanPortfolio)
	case actions.ActLoadStocks:
		return r.next(chanStocks)
	case actions.ActLoadTrending:
		return r.next(chanTrending)
	case actions.ActSearchStocks:
		return r.next(chanSearch)
	case actions.ActLoadRecentSearches:
		return r.next(chanRecents)
	case actions.ActPlaceOrder:
		return r.next(chanOrder)
	case actions.ActPlaceOrderSuccess:
		// The scheduled clear belongs to the order that just filled.
		return atomic.LoadUint64(&r.gens[chanOrder])
	case actions.ActAddToRecentSearches:
		// Reserve the durable save before the commit lands. Released by
		// persistRecents, or by the tap if the commit is vetoed.
		r.saves.Add(1)
	}
	return 0
}

// react routes one committed action to its effect, if any.
func (r *Runner) react(a store.Action, state store.State, gen uint64) {
	switch a.Type {
	case actions.ActLoadPortfolio:
		r.loadPortfolio(gen)
	case actions.ActLoadStocks:
		r.loadStocks(gen)
	case actions.ActLoadTrending:
		r.loadTrending(gen)
	case actions.ActSearchStocks:
		r.search(a.Update.(string), gen)
	case actions.ActClearSearchResults:
		r.resetSearch()
	case actions.ActLoadRecentSearches:
		r.loadRecents(gen)
	case actions.ActAddToRecentSearches:
		r.persistRecents(state)
	case actions.ActPlaceOrder:
		r.placeOrder(a.Update.(data.BuyOrder), gen)
	case actions.ActPlaceOrderSuccess:
		r.scheduleOrderClear(gen)
	}
}

// next issues a new generation for a channel, superseding any request that is
// still in flight on it.
func (r *Runner) next(ch int) uint64 {
	return atomic.AddUint64(&r.gens[ch], 1)
}

// dispatch performs a result action, unless the Runner was stopped or the
// request that produced it has been superseded.
func (r *Runner) dispatch(ch int, gen uint64, a store.Action) {
	if r.st == nil || r.ctx.Err() != nil {
		return
	}
	if atomic.LoadUint64(&r.gens[ch]) != gen {
		return // A newer request owns this channel.
	}
	if err := r.st.Perform(a); err != nil {
		glog.Errorf("effects: could not perform action %d: %s", a.Type, err)
	}
}

func (r *Runner) loadPortfolio(gen uint64) {
	go func() {
		p, err := r.backend.Portfolio(r.ctx)
		if err != nil {
			r.dispatch(chanPortfolio, gen, actions.LoadPortfolioFailure(failText(err, "Failed to load portfolio")))
			return
		}
		r.dispatch(chanPortfolio, gen, actions.LoadPortfolioSuccess(p))
	}()
}

func (r *Runner) loadStocks(gen uint64) {
	go func() {
		stocks, err := r.backend.Stocks(r.ctx)
		if err != nil {
			r.dispatch(chanStocks, gen, actions.LoadStocksFailure(failText(err, "Failed to load stocks")))
			return
		}
		r.dispatch(chanStocks, gen, actions.LoadStocksSuccess(stocks))
	}()
}

func (r *Runner) loadTrending(gen uint64) {
	go func() {
		trending, err := r.backend.Trending(r.ctx)
		if err != nil {
			r.dispatch(chanTrending, gen, actions.LoadTrendingFailure(failText(err, "Failed to load trending stocks")))
			return
		}
		r.dispatch(chanTrending, gen, actions.LoadTrendingSuccess(trending))
	}()
}

// search arms the debounce timer for query, unless a newer search trigger has
// already been committed. Whitespace-only queries never reach the backend;
// clearing results is the UI's job via ClearSearchResults.
func (r *Runner) search(query string, gen uint64) {
	if strings.TrimSpace(query) == "" {
		return
	}
	if atomic.LoadUint64(&r.gens[chanSearch]) != gen {
		return // A newer search trigger owns the timer.
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.searchTimer != nil {
		r.searchTimer.Stop()
	}
	r.searchTimer = time.AfterFunc(r.opts.SearchDebounce, func() { r.fireSearch(query, gen) })
}

// fireSearch runs after the debounce quiet time. Consecutive duplicate
// queries are suppressed.
func (r *Runner) fireSearch(query string, gen uint64) {
	if r.ctx.Err() != nil {
		return
	}
	if atomic.LoadUint64(&r.gens[chanSearch]) != gen {
		return
	}

	r.mu.Lock()
	if query == r.lastIssued {
		r.mu.Unlock()
		return
	}
	r.lastIssued = query
	r.mu.Unlock()

	go func() {
		results, err := r.backend.Search(r.ctx, query)
		if err != nil {
			r.dispatch(chanSearch, gen, actions.SearchStocksFailure(failText(err, "Failed to search stocks")))
			return
		}
		r.dispatch(chanSearch, gen, actions.SearchStocksSuccess(results))
	}()
}

// resetSearch forgets the duplicate filter so the same query can be searched
// again after the results were cleared.
func (r *Runner) resetSearch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastIssued = ""
}

// loadRecents restores the recent-search list. It always succeeds: failures
// degrade to an empty list. It never completes before RecentsMinDelay.
func (r *Runner) loadRecents(gen uint64) {
	go func() {
		start := time.Now()
		list, err := r.recents.Load(r.ctx)
		if err != nil {
			glog.Errorf("effects: could not load recent searches: %s", err)
			list = nil
		}
		if list == nil {
			list = []data.SearchResult{}
		}

		if rem := r.opts.RecentsMinDelay - time.Since(start); rem > 0 {
			select {
			case <-time.After(rem):
			case <-r.ctx.Done():
				return
			}
		}
		r.dispatch(chanRecents, gen, actions.LoadRecentSearchesSuccess(list))
	}()
}

// persistRecents durably saves the already-updated, already-bounded list. It
// dispatches nothing. The write is deliberately not tied to the Runner's
// context: a committed update must reach storage even when Stop() follows
// immediately, so Stop() waits for the save instead of cancelling it.
func (r *Runner) persistRecents(state store.State) {
	list := state.Data.(data.State).RecentSearches
	go func() {
		defer r.saves.Done()
		if err := r.recents.Save(context.Background(), list); err != nil {
			// A persistence failure never blocks or reverts the in-memory
			// update.
			glog.Errorf("effects: could not persist recent searches: %s", err)
		}
	}()
}

func (r *Runner) placeOrder(order data.BuyOrder, gen uint64) {
	go func() {
		if err := r.backend.PlaceOrder(r.ctx, order); err != nil {
			r.dispatch(chanOrder, gen, actions.PlaceOrderFailure(failText(err, "Failed to place order")))
			return
		}
		// The originally submitted order, not a server echo.
		r.dispatch(chanOrder, gen, actions.PlaceOrderSuccess(order))
	}()
}

// scheduleOrderClear resets the transient order-success state after a short
// delay. A newer order placed inside the delay supersedes the reset.
func (r *Runner) scheduleOrderClear(gen uint64) {
	time.AfterFunc(r.opts.ClearOrderDelay, func() {
		r.dispatch(chanOrder, gen, actions.ClearBuyOrder())
	})
}

// failText prefers the error's own message, falling back to a canned one.
func failText(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
