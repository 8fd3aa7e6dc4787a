// Command stockfolio is a terminal client for the brokerage backend: it
// shows the dashboard, searches instruments and places buy orders, driving
// everything through the state store.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xAX/notificator"
	"github.com/golang/glog"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stockfolio/service"
	"stockfolio/state"
	"stockfolio/state/actions"
	"stockfolio/state/data"
	"stockfolio/state/selectors"
	"stockfolio/storage"
	"stockfolio/store"
)

const loadTimeout = 15 * time.Second

var notify *notificator.Notificator

var rootCmd = &cobra.Command{
	Use:   "stockfolio",
	Short: "Terminal client for the brokerage backend",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog registers on the standard flag set, which cobra bypasses.
		flag.Set("logtostderr", "true")
		flag.Set("v", strconv.Itoa(viper.GetInt("verbosity")))
		flag.CommandLine.Parse([]string{})
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the portfolio and trending instruments",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		perform(app.Store,
			actions.LoadPortfolio(),
			actions.LoadStocks(),
			actions.LoadTrending(),
		)
		if !waitFor(app.Store, store.Any, settled, loadTimeout) {
			return fmt.Errorf("backend did not answer within %s", loadTimeout)
		}

		st := current(app.Store)
		dash := (&selectors.Dashboard{}).Select(st)

		if dash.Portfolio != nil {
			fmt.Printf("Total equity: $%.2f\n\n", dash.Portfolio.TotalEquity)
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Symbol", "Shares", "Value", "Change"})
			for _, h := range dash.Portfolio.Holdings {
				table.Append([]string{
					h.Stock.Symbol,
					fmt.Sprintf("%g", h.Shares),
					fmt.Sprintf("$%.2f", h.CurrentValue),
					h.Stock.ChangePercent,
				})
			}
			table.Render()
		} else if st.PortfolioLoading.Error != "" {
			fmt.Printf("Portfolio unavailable: %s\n", st.PortfolioLoading.Error)
		}

		if len(dash.Trending) > 0 {
			fmt.Println("\nTrending")
			renderStocks(dash.Trending)
		} else if st.TrendingLoading.Error != "" {
			fmt.Printf("Trending unavailable: %s\n", st.TrendingLoading.Error)
		}
		return nil
	},
}

var stocksCmd = &cobra.Command{
	Use:   "stocks",
	Short: "Show the volume leaders",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		perform(app.Store, actions.LoadStocks())
		if !waitFor(app.Store, "StocksLoading", settled, loadTimeout) {
			return fmt.Errorf("backend did not answer within %s", loadTimeout)
		}

		st := current(app.Store)
		if st.StocksLoading.Error != "" {
			return fmt.Errorf("stocks unavailable: %s", st.StocksLoading.Error)
		}

		fmt.Println("Top by volume")
		renderStocks((&selectors.TopByVolume{}).Select(st))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search instruments by symbol or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("query must not be blank")
		}

		app, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		perform(app.Store,
			actions.LoadRecentSearches(),
			actions.SearchStocks(query),
		)
		if !waitFor(app.Store, "SearchLoading", settled, loadTimeout) {
			return fmt.Errorf("backend did not answer within %s", loadTimeout)
		}

		view := (&selectors.SearchData{}).Select(current(app.Store))
		if view.IsLoading {
			return fmt.Errorf("search did not settle")
		}

		if len(view.Results) == 0 {
			fmt.Printf("No matches for %q\n", view.Query)
		} else {
			fmt.Printf("Matches for %q\n", view.Query)
			renderResults(view.Results)

			// Remember the best match; the tap persists it durably.
			perform(app.Store, actions.AddToRecentSearches(view.Results[0].Stock))
		}

		if len(view.Recents) > 0 {
			fmt.Println("\nRecent searches")
			renderResults(view.Recents)
		}
		return nil
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy <symbol> <shares>",
	Short: "Place a market buy order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := strings.ToUpper(args[0])
		shares, err := strconv.ParseFloat(args[1], 64)
		if err != nil || shares <= 0 {
			return fmt.Errorf("%s is not a valid share count", args[1])
		}

		app, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()

		perform(app.Store, actions.LoadStocks(), actions.LoadPortfolio())
		if !waitFor(app.Store, store.Any, settled, loadTimeout) {
			return fmt.Errorf("backend did not answer within %s", loadTimeout)
		}

		st := current(app.Store)
		var instrument *data.StockInstrument
		for i, s := range st.Stocks {
			if s.Symbol == symbol {
				instrument = &st.Stocks[i]
				break
			}
		}
		if instrument == nil {
			return fmt.Errorf("unknown symbol %s", symbol)
		}

		order := data.BuyOrder{
			Stock:          *instrument,
			Shares:         shares,
			OrderType:      data.Market,
			EstimatedTotal: shares * instrument.Price,
		}

		perform(app.Store, actions.PlaceOrder(order))
		ok := waitFor(app.Store, store.Any, func(s data.State) bool {
			return s.BuyOrderSuccess || s.BuyOrderLoading.Error != ""
		}, loadTimeout)
		if !ok {
			return fmt.Errorf("order was not acknowledged within %s", loadTimeout)
		}

		st = current(app.Store)
		if st.BuyOrderLoading.Error != "" {
			notify.Push("Order failed",
				fmt.Sprintf("Could not buy %g shares of %s: %s", shares, symbol, st.BuyOrderLoading.Error),
				"", notificator.UR_CRITICAL)
			return fmt.Errorf("order failed: %s", st.BuyOrderLoading.Error)
		}

		notify.Push("Order filled",
			fmt.Sprintf("Bought %g shares of %s for about $%.2f", shares, symbol, order.EstimatedTotal),
			"", notificator.UR_NORMAL)
		fmt.Printf("Bought %g shares of %s for about $%.2f\n", shares, symbol, order.EstimatedTotal)

		if p := current(app.Store).Portfolio; p != nil {
			fmt.Printf("Total equity: $%.2f\n", p.TotalEquity)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("base-url", service.DefaultBaseURL, "backend base URL")
	rootCmd.PersistentFlags().String("db", "stockfolio.db", "path to the sqlite database")
	rootCmd.PersistentFlags().Int("verbosity", 0, "log verbosity (2 logs state diffs)")
	viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbosity", rootCmd.PersistentFlags().Lookup("verbosity"))
	viper.SetEnvPrefix("stockfolio")
	viper.AutomaticEnv()

	rootCmd.AddCommand(dashboardCmd, stocksCmd, searchCmd, buyCmd)
}

// newApp wires the store against the real collaborators.
func newApp() (*state.App, func(), error) {
	kv, err := storage.OpenSQLite(viper.GetString("db"))
	if err != nil {
		return nil, nil, err
	}

	app, err := state.New(state.Config{
		Backend: service.New(viper.GetString("base_url")),
		Recents: storage.NewRecents(kv),
	})
	if err != nil {
		kv.Close()
		return nil, nil, err
	}

	cleanup := func() {
		app.Close()
		kv.Close()
	}
	return app, cleanup, nil
}

func current(s *store.Store) data.State {
	return s.State().Data.(data.State)
}

func perform(s *store.Store, acts ...store.Action) {
	for _, a := range acts {
		if err := s.Perform(a); err != nil {
			glog.Errorf("could not perform action %d: %s", a.Type, err)
		}
	}
}

// settled reports that no resource is still loading.
func settled(s data.State) bool {
	return !s.PortfolioLoading.IsLoading &&
		!s.StocksLoading.IsLoading &&
		!s.TrendingLoading.IsLoading &&
		!s.SearchLoading.IsLoading &&
		!s.BuyOrderLoading.IsLoading
}

// waitFor blocks until pred holds for the store's state or timeout elapses.
// Store callbacks must never Perform; they only signal the channel.
func waitFor(s *store.Store, field string, pred func(data.State) bool, timeout time.Duration) bool {
	ch := make(chan struct{}, 1)
	cancel, err := s.Subscribe(field, func(sig store.Signal) {
		if pred(sig.State.Data.(data.State)) {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		glog.Errorf("could not subscribe to %s: %s", field, err)
		return false
	}
	defer cancel()

	// The condition may already hold; check after subscribing so no commit
	// can slip between the check and the subscription.
	if pred(s.State().Data.(data.State)) {
		return true
	}

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func renderStocks(stocks []data.StockInstrument) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Symbol", "Name", "Price", "Change", "Volume"})
	for _, s := range stocks {
		volume := "-"
		if s.Volume != nil {
			volume = fmt.Sprintf("%.0f", *s.Volume)
		}
		table.Append([]string{s.Symbol, s.Name, fmt.Sprintf("$%.2f", s.Price), s.ChangePercent, volume})
	}
	table.Render()
}

func renderResults(results []data.SearchResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Symbol", "Name", "Price", "Change", "Source"})
	for _, r := range results {
		table.Append([]string{
			r.Stock.Symbol, r.Stock.Name,
			fmt.Sprintf("$%.2f", r.Stock.Price),
			r.Stock.ChangePercent,
			string(r.SearchType),
		})
	}
	table.Render()
}

func main() {
	notify = notificator.New(notificator.Options{AppName: "Stockfolio"})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
