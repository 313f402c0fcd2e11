package models

import "time"

// OptionType distinguishes call and put contracts.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// TradeSide classifies where the last trade printed relative to the quote.
type TradeSide string

const (
	SideAsk     TradeSide = "ask"
	SideBid     TradeSide = "bid"
	SideMid     TradeSide = "mid"
	SideUnknown TradeSide = "n/a"
)

// OptionContract is a single row of an option chain. Strike, expiration and
// type identify the contract; Symbol carries the vendor's OCC-style symbol
// when available and doubles as the contract identity across snapshots.
type OptionContract struct {
	Symbol       string     `json:"symbol"`
	Strike       float64    `json:"strike"`
	Expiration   string     `json:"expiration"`
	Type         OptionType `json:"type"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	LastPrice    float64    `json:"last_price"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	// Premium is the notional traded against Volume (volume * price * 100).
	Premium    float64 `json:"premium"`
	Delta      float64 `json:"delta"`
	ImpliedVol float64 `json:"implied_vol"`
}

// ChainSnapshot is one fully parsed option chain for a ticker. Snapshots are
// immutable once captured; a newer scan supersedes the previous snapshot for
// the same ticker rather than mutating it.
type ChainSnapshot struct {
	Ticker    string           `json:"ticker"`
	Timestamp time.Time        `json:"timestamp"`
	Contracts []OptionContract `json:"contracts"`
}

// UnusualActivityRecord is emitted for a contract whose volume, open interest,
// premium and delta all clear the configured thresholds. It keeps a copy of
// the source contract plus the snapshot timestamp it was derived from.
type UnusualActivityRecord struct {
	Ticker       string         `json:"ticker"`
	Contract     OptionContract `json:"contract"`
	SnapshotTime time.Time      `json:"snapshot_time"`
	Side         TradeSide      `json:"side"`
}
