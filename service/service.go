// Package service is the client for the brokerage backend. It wraps the
// backend's wire shapes and maps them into the domain types kept in the
// store; nothing above this package sees a raw response.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"stockfolio/state/data"
)

// DefaultBaseURL is where the backend listens when not configured otherwise.
const DefaultBaseURL = "http://localhost:3001"

const defaultTimeout = 10 * time.Second

// TransientError indicates the request itself failed: the backend was
// unreachable, timed out, or answered with a non-2xx status.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedError indicates the backend answered, but the body did not match
// the expected shape.
type MalformedError struct {
	Op  string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %s", e.Op, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Client talks to the brokerage backend.
type Client struct {
	base string
	hc   *http.Client
}

// New is the constructor for Client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: defaultTimeout},
	}
}

// Wire shapes, as the backend sends them.

type positionResp struct {
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"currentPrice"`
	ChangePercent float64 `json:"changePercent"`
	Quantity      float64 `json:"quantity"`
	MarketValue   float64 `json:"marketValue"`
}

type portfolioResp struct {
	TotalValue float64        `json:"totalValue"`
	Positions  []positionResp `json:"positions"`
}

type stockResp struct {
	Symbol    string  `json:"symbol"`
	FullName  string  `json:"fullName"`
	Ask       float64 `json:"ask"`
	Open      float64 `json:"open"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	MarketCap float64 `json:"marketCap"`
	Logo      string  `json:"logo"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
}

type orderReq struct {
	ClientOrderID  string  `json:"clientOrderId"`
	Symbol         string  `json:"symbol"`
	Shares         float64 `json:"shares"`
	OrderType      string  `json:"orderType"`
	LimitPrice     float64 `json:"limitPrice,omitempty"`
	EstimatedTotal float64 `json:"estimatedTotal"`
}

type orderResp struct {
	OrderID        string  `json:"orderId"`
	Status         string  `json:"status"`
	ExecutedPrice  float64 `json:"executedPrice"`
	ExecutedShares float64 `json:"executedShares"`
	ExecutedAt     string  `json:"executedAt"`
}

// Portfolio fetches the user's account. The endpoint carries no instrument
// names, so Name is left empty on every holding.
func (c *Client) Portfolio(ctx context.Context) (data.Portfolio, error) {
	var resp portfolioResp
	if err := c.get(ctx, "/portfolio", &resp); err != nil {
		return data.Portfolio{}, err
	}

	holdings := make([]data.PortfolioHolding, 0, len(resp.Positions))
	for _, pos := range resp.Positions {
		holdings = append(holdings, data.PortfolioHolding{
			Stock: data.StockInstrument{
				Symbol:        pos.Symbol,
				Name:          "",
				Price:         pos.CurrentPrice,
				ChangePercent: formatPercent(pos.ChangePercent),
				Volume:        data.Float(0),
			},
			Shares:       pos.Quantity,
			CurrentValue: pos.MarketValue,
		})
	}

	return data.Portfolio{TotalEquity: resp.TotalValue, Holdings: holdings}, nil
}

// Stocks fetches the full instrument list.
func (c *Client) Stocks(ctx context.Context) ([]data.StockInstrument, error) {
	raw, err := c.rawStocks(ctx)
	if err != nil {
		return nil, err
	}

	stocks := make([]data.StockInstrument, 0, len(raw))
	for _, r := range raw {
		stocks = append(stocks, mapStock(r))
	}
	return stocks, nil
}

// Trending fetches the trending list, passed through unmodified.
func (c *Client) Trending(ctx context.Context) ([]data.TrendingStock, error) {
	var trending []data.TrendingStock
	if err := c.get(ctx, "/trending", &trending); err != nil {
		return nil, err
	}
	return trending, nil
}

// Search fetches the instrument list and filters it by a case-insensitive
// substring match on symbol or full name. A blank query returns an empty
// result without touching the network.
func (c *Client) Search(ctx context.Context, query string) ([]data.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []data.SearchResult{}, nil
	}

	raw, err := c.rawStocks(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	results := make([]data.SearchResult, 0, len(raw))
	for _, r := range raw {
		if !strings.Contains(strings.ToLower(r.Symbol), q) && !strings.Contains(strings.ToLower(r.FullName), q) {
			continue
		}
		results = append(results, data.SearchResult{Stock: mapStock(r), SearchType: data.SearchTypeSearch})
	}
	return results, nil
}

// PlaceOrder submits a buy order. The receipt's fill details are logged at
// the boundary; callers only learn success or failure.
func (c *Client) PlaceOrder(ctx context.Context, order data.BuyOrder) error {
	req := orderReq{
		ClientOrderID:  uuid.New(),
		Symbol:         order.Stock.Symbol,
		Shares:         order.Shares,
		OrderType:      string(order.OrderType),
		LimitPrice:     order.LimitPrice,
		EstimatedTotal: order.EstimatedTotal,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return &MalformedError{Op: "place order", Err: err}
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/orders", bytes.NewReader(body))
	if err != nil {
		return &TransientError{Op: "place order", Err: err}
	}
	hreq.Header.Set("Content-Type", "application/json")

	hresp, err := c.hc.Do(hreq)
	if err != nil {
		return &TransientError{Op: "place order", Err: err}
	}
	defer hresp.Body.Close()

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return &TransientError{Op: "place order", Err: fmt.Errorf("backend returned %s", hresp.Status)}
	}

	var receipt orderResp
	if err := json.NewDecoder(hresp.Body).Decode(&receipt); err != nil {
		return &MalformedError{Op: "place order", Err: err}
	}

	glog.Infof("order %s (%s) %s: executed %g shares of %s at %g",
		receipt.OrderID, req.ClientOrderID, receipt.Status, receipt.ExecutedShares, order.Stock.Symbol, receipt.ExecutedPrice)
	return nil
}

func (c *Client) rawStocks(ctx context.Context) ([]stockResp, error) {
	var raw []stockResp
	if err := c.get(ctx, "/stocks", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	op := "GET " + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransientError{Op: op, Err: fmt.Errorf("backend returned %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &MalformedError{Op: op, Err: err}
	}
	return nil
}

// mapStock maps the /stocks wire shape into the domain snapshot: the ask is
// the price, the day move is derived from open/close, and market cap is
// reported in millions.
func mapStock(r stockResp) data.StockInstrument {
	var pct float64
	if r.Open != 0 {
		pct = ((r.Close - r.Open) / r.Open) * 100
	}

	return data.StockInstrument{
		Symbol:        r.Symbol,
		Name:          r.FullName,
		Price:         r.Ask,
		ChangePercent: formatPercent(pct),
		Logo:          r.Logo,
		MarketCap:     r.MarketCap / 1000000,
		Volume:        data.Float(r.Volume),
		DayRange:      &data.DayRange{Low: r.Low, High: r.High},
	}
}

// formatPercent renders a day move with two decimals, prefixing non-negative
// values with "+".
func formatPercent(p float64) string {
	if p >= 0 {
		return fmt.Sprintf("+%.2f%%", p)
	}
	return fmt.Sprintf("%.2f%%", p)
}
