package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"stockfolio/state/data"
)

const stocksBody = `[
	{"symbol": "AAPL", "fullName": "Apple Inc", "ask": 150.25, "open": 148.00, "close": 151.70, "volume": 52000000, "marketCap": 2400000000000, "logo": "https://logos/aapl.png", "low": 147.10, "high": 152.30},
	{"symbol": "FLAT", "fullName": "Flatline Corp", "ask": 10, "open": 10, "close": 10, "volume": 1000, "marketCap": 5000000, "logo": "", "low": 9, "high": 11},
	{"symbol": "DOWN", "fullName": "Downhill Ltd", "ask": 20, "open": 100, "close": 90, "volume": 2000, "marketCap": 0, "logo": "", "low": 19, "high": 21},
	{"symbol": "NOPE", "fullName": "No Open PLC", "ask": 5, "open": 0, "close": 7, "volume": 300, "marketCap": 1000000, "logo": "", "low": 4, "high": 6}
]`

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func stocksServer(t *testing.T) *Client {
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stocks" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(stocksBody))
	})
}

func TestStocksMapping(t *testing.T) {
	c := stocksServer(t)

	got, err := c.Stocks(context.Background())
	if err != nil {
		t.Fatalf("Stocks(): unexpected error: %s", err)
	}

	want := []data.StockInstrument{
		{
			Symbol:        "AAPL",
			Name:          "Apple Inc",
			Price:         150.25,
			ChangePercent: "+2.50%",
			Logo:          "https://logos/aapl.png",
			MarketCap:     2400000,
			Volume:        data.Float(52000000),
			DayRange:      &data.DayRange{Low: 147.10, High: 152.30},
		},
		{
			Symbol:        "FLAT",
			Name:          "Flatline Corp",
			Price:         10,
			ChangePercent: "+0.00%",
			MarketCap:     5,
			Volume:        data.Float(1000),
			DayRange:      &data.DayRange{Low: 9, High: 11},
		},
		{
			Symbol:        "DOWN",
			Name:          "Downhill Ltd",
			Price:         20,
			ChangePercent: "-10.00%",
			MarketCap:     0,
			Volume:        data.Float(2000),
			DayRange:      &data.DayRange{Low: 19, High: 21},
		},
		{
			Symbol:        "NOPE",
			Name:          "No Open PLC",
			Price:         5,
			ChangePercent: "+0.00%",
			MarketCap:     1,
			Volume:        data.Float(300),
			DayRange:      &data.DayRange{Low: 4, High: 6},
		},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestStocksMapping: -want/+got:\n%s", diff)
	}
}

func TestPortfolioMapping(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/portfolio" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"totalValue": 12500.50,
			"positions": [
				{"symbol": "AAPL", "currentPrice": 150.25, "changePercent": 2.5, "quantity": 10, "marketValue": 1502.50},
				{"symbol": "DOWN", "currentPrice": 20, "changePercent": -1.25, "quantity": 3, "marketValue": 60}
			]
		}`))
	})

	got, err := c.Portfolio(context.Background())
	if err != nil {
		t.Fatalf("Portfolio(): unexpected error: %s", err)
	}

	want := data.Portfolio{
		TotalEquity: 12500.50,
		Holdings: []data.PortfolioHolding{
			{
				Stock: data.StockInstrument{
					Symbol:        "AAPL",
					Price:         150.25,
					ChangePercent: "+2.50%",
					Volume:        data.Float(0),
				},
				Shares:       10,
				CurrentValue: 1502.50,
			},
			{
				Stock: data.StockInstrument{
					Symbol:        "DOWN",
					Price:         20,
					ChangePercent: "-1.25%",
					Volume:        data.Float(0),
				},
				Shares:       3,
				CurrentValue: 60,
			},
		},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestPortfolioMapping: -want/+got:\n%s", diff)
	}
}

func TestTrendingPassthrough(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trending" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"id": 1, "symbol": "TSLA"}, {"id": 2, "symbol": "NVDA"}]`))
	})

	got, err := c.Trending(context.Background())
	if err != nil {
		t.Fatalf("Trending(): unexpected error: %s", err)
	}
	want := []data.TrendingStock{{ID: 1, Symbol: "TSLA"}, {ID: 2, Symbol: "NVDA"}}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestTrendingPassthrough: -want/+got:\n%s", diff)
	}
}

func TestSearchFilters(t *testing.T) {
	c := stocksServer(t)

	tests := []struct {
		desc  string
		query string
		want  []string
	}{
		{desc: "symbol substring", query: "aap", want: []string{"AAPL"}},
		{desc: "name substring", query: "corp", want: []string{"FLAT"}},
		{desc: "case insensitive", query: "DOWNHILL", want: []string{"DOWN"}},
		{desc: "no match", query: "zzz", want: nil},
	}

	for _, test := range tests {
		got, err := c.Search(context.Background(), test.query)
		if err != nil {
			t.Errorf("TestSearchFilters(%s): unexpected error: %s", test.desc, err)
			continue
		}
		var symbols []string
		for _, r := range got {
			symbols = append(symbols, r.Stock.Symbol)
			if r.SearchType != data.SearchTypeSearch {
				t.Errorf("TestSearchFilters(%s): search type %q, want %q", test.desc, r.SearchType, data.SearchTypeSearch)
			}
		}
		if diff := pretty.Compare(test.want, symbols); diff != "" {
			t.Errorf("TestSearchFilters(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestSearchBlankQuerySkipsNetwork(t *testing.T) {
	hits := 0
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`[]`))
	})

	got, err := c.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Search(blank): unexpected error: %s", err)
	}
	if len(got) != 0 {
		t.Errorf("Search(blank): got %+v, want empty", got)
	}
	if hits != 0 {
		t.Errorf("Search(blank) hit the backend %d times", hits)
	}
}

func TestPlaceOrder(t *testing.T) {
	var got orderReq
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type: got %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("order body: %s", err)
		}
		w.Write([]byte(`{"orderId": "ord-1", "status": "filled", "executedPrice": 150.30, "executedShares": 5, "executedAt": "2024-01-02T15:04:05Z"}`))
	})

	order := data.BuyOrder{
		Stock:          data.StockInstrument{Symbol: "AAPL", Name: "Apple Inc", Price: 150.25},
		Shares:         5,
		OrderType:      data.Limit,
		LimitPrice:     150.00,
		EstimatedTotal: 750,
	}
	if err := c.PlaceOrder(context.Background(), order); err != nil {
		t.Fatalf("PlaceOrder(): unexpected error: %s", err)
	}

	if got.ClientOrderID == "" {
		t.Errorf("clientOrderId missing from the request")
	}
	got.ClientOrderID = ""
	want := orderReq{Symbol: "AAPL", Shares: 5, OrderType: "limit", LimitPrice: 150.00, EstimatedTotal: 750}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestPlaceOrder: -want/+got:\n%s", diff)
	}
}

func TestBackendErrorIsTransient(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Stocks(context.Background())
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("Stocks() on a 500: got %T (%v), want *TransientError", err, err)
	}

	err = c.PlaceOrder(context.Background(), data.BuyOrder{Stock: data.StockInstrument{Symbol: "AAPL"}})
	if !errors.As(err, &transient) {
		t.Errorf("PlaceOrder() on a 500: got %T (%v), want *TransientError", err, err)
	}
}

func TestUnreachableBackendIsTransient(t *testing.T) {
	c := New("http://127.0.0.1:1")

	_, err := c.Trending(context.Background())
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("Trending() unreachable: got %T (%v), want *TransientError", err, err)
	}
}

func TestBadBodyIsMalformed(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"this is": "not a list"`))
	})

	_, err := c.Stocks(context.Background())
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("Stocks() on bad JSON: got %T (%v), want *MalformedError", err, err)
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2.5, "+2.50%"},
		{0, "+0.00%"},
		{-1.254, "-1.25%"},
		{10.005, "+10.01%"},
	}
	for _, test := range tests {
		if got := formatPercent(test.in); got != test.want {
			t.Errorf("formatPercent(%g): got %q, want %q", test.in, got, test.want)
		}
	}
}
