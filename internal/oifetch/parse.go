package oifetch

import (
	"encoding/json"
	"fmt"
)

// parsePage validates one page of the paginated endpoint. Pages are
// all-or-nothing: one malformed record discards the page, which in turn
// aborts the whole fetch.
func parsePage(body []byte) (*oiPageResponse, error) {
	var resp oiPageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode open-interest page: %w", err)
	}
	for i, r := range resp.Records {
		if r.Symbol == "" {
			return nil, fmt.Errorf("record %d missing contract symbol", i)
		}
		if r.OpenInterest == nil {
			return nil, fmt.Errorf("record %d (%s) missing open interest", i, r.Symbol)
		}
	}
	return &resp, nil
}
