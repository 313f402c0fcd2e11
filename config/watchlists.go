package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Watchlist groups tickers that should be scanned together. Separate chain and
// open-interest ticker sets allow the expensive paginated fetch to run on a
// smaller universe than the chain scan.
type Watchlist struct {
	Name      string   `yaml:"name"`
	Tickers   []string `yaml:"tickers"`
	OITickers []string `yaml:"oi_tickers"`
}

// Watchlists represents the full watchlist configuration file.
type Watchlists struct {
	Lists []Watchlist `yaml:"watchlists"`
}

// LoadWatchlists loads watchlist configuration from the given path.
func LoadWatchlists(path string) (*Watchlists, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlists file: %w", err)
	}
	var cfg Watchlists
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse watchlists file: %w", err)
	}
	for i := range cfg.Lists {
		cfg.Lists[i].Tickers = normalizeTickers(cfg.Lists[i].Tickers)
		cfg.Lists[i].OITickers = normalizeTickers(cfg.Lists[i].OITickers)
	}
	return &cfg, nil
}

// AllTickers returns the deduplicated union of chain tickers across lists,
// preserving first-seen order.
func (w *Watchlists) AllTickers() []string {
	return unionTickers(w.Lists, func(l Watchlist) []string { return l.Tickers })
}

// AllOITickers returns the deduplicated union of open-interest tickers.
func (w *Watchlists) AllOITickers() []string {
	return unionTickers(w.Lists, func(l Watchlist) []string { return l.OITickers })
}

func unionTickers(lists []Watchlist, pick func(Watchlist) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, t := range pick(l) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func normalizeTickers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
