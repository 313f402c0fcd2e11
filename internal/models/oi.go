package models

import "time"

// OIRecord is a single open-interest observation retrieved from the paginated
// vendor dataset. Page records which page the row arrived on; when the
// dataset shifts mid-fetch and a contract repeats across pages the fetcher
// keeps the most recently retrieved value.
type OIRecord struct {
	Ticker         string `json:"ticker"`
	ContractSymbol string `json:"contract_symbol"`
	OpenInterest   int64  `json:"open_interest"`
	// OIChange is the vendor-reported day-over-day open interest delta.
	OIChange    int64     `json:"oi_change"`
	Page        int       `json:"page"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// OIBatch is the complete result of one paginated fetch for a ticker.
// Batches are atomic: a batch exists only when every page retrieved
// successfully.
type OIBatch struct {
	Ticker    string     `json:"ticker"`
	Records   []OIRecord `json:"records"`
	FetchedAt time.Time  `json:"fetched_at"`
}
