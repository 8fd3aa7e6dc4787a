package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"

	"stockfolio/state/data"
)

// recentSearchesKey is the single KV key the recent-search list lives under.
const recentSearchesKey = "app_recent_searches_v1"

// maxRecent bounds the list; it matches the in-memory bound in the modifiers.
const maxRecent = 5

// Recents is the durable copy of the recent-search list.
type Recents struct {
	kv KV
}

// NewRecents is the constructor for Recents.
func NewRecents(kv KV) *Recents {
	return &Recents{kv: kv}
}

// Load restores the recent-search list. A missing key, corrupt value, or
// malformed entry never fails the load: bad entries are dropped, bad lists
// come back empty. Only the KV itself can surface an error.
func (r *Recents) Load(ctx context.Context) ([]data.SearchResult, error) {
	raw, ok, err := r.kv.Get(ctx, recentSearchesKey)
	if err != nil {
		return nil, fmt.Errorf("could not load recent searches: %w", err)
	}
	if !ok {
		return []data.SearchResult{}, nil
	}

	// Entries are decoded one by one so a single corrupt record (bad shape,
	// non-numeric price) does not take out the rest of the list.
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		glog.Warningf("recent searches value is corrupt, starting empty: %s", err)
		return []data.SearchResult{}, nil
	}

	out := make([]data.SearchResult, 0, len(entries))
	for _, e := range entries {
		var sr data.SearchResult
		if err := json.Unmarshal(e, &sr); err != nil {
			glog.Warningf("dropping unreadable recent search: %s", err)
			continue
		}
		if sr.Stock.Symbol == "" || sr.Stock.Name == "" {
			glog.Warningf("dropping recent search with missing symbol or name")
			continue
		}
		// The price key must be present and numeric; a zero default from an
		// absent key is indistinguishable from real data otherwise.
		var priced struct {
			Stock struct {
				Price *float64 `json:"price"`
			} `json:"stock"`
		}
		if err := json.Unmarshal(e, &priced); err != nil || priced.Stock.Price == nil {
			glog.Warningf("dropping recent search without a numeric price")
			continue
		}
		sr.SearchType = data.SearchTypeRecent
		out = append(out, sr)
		if len(out) == maxRecent {
			break
		}
	}
	return out, nil
}

// Save durably writes the list. The caller already bounded and deduplicated
// it; Save stores it as given.
func (r *Recents) Save(ctx context.Context, searches []data.SearchResult) error {
	b, err := json.Marshal(searches)
	if err != nil {
		return fmt.Errorf("could not encode recent searches: %w", err)
	}
	if err := r.kv.Set(ctx, recentSearchesKey, string(b)); err != nil {
		return fmt.Errorf("could not persist recent searches: %w", err)
	}
	return nil
}
