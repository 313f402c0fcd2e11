package scanner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"optionflow/internal/models"
	"optionflow/internal/symbols"
)

// chainResponse is the explicit schema for the option-chain endpoint.
// Required per-contract fields are pointers so a missing field is
// distinguishable from a zero value.
type chainResponse struct {
	Ticker    string          `json:"ticker"`
	Timestamp int64           `json:"timestamp"`
	Contracts []chainContract `json:"contracts"`
}

type chainContract struct {
	Symbol       string   `json:"symbol"`
	Strike       *float64 `json:"strike"`
	Expiration   string   `json:"expiration"`
	Type         string   `json:"type"`
	Volume       *int64   `json:"volume"`
	OpenInterest *int64   `json:"openInterest"`
	LastPrice    *float64 `json:"lastPrice"`
	Bid          float64  `json:"bid"`
	Ask          float64  `json:"ask"`
	Premium      float64  `json:"premium"`
	Delta        float64  `json:"delta"`
	ImpliedVol   float64  `json:"impliedVolatility"`
}

// parseChain validates the response body into a ChainSnapshot. A contract
// missing a required field is dropped; a body that fails to decode, names a
// different ticker, or carries no usable contracts at all invalidates the
// whole response.
func parseChain(ticker string, body []byte) (*models.ChainSnapshot, error) {
	var resp chainResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode chain response: %w", err)
	}
	if resp.Ticker != "" && !strings.EqualFold(resp.Ticker, ticker) {
		return nil, fmt.Errorf("chain response ticker %q does not match %q", resp.Ticker, ticker)
	}
	if len(resp.Contracts) == 0 {
		return nil, fmt.Errorf("chain response carries no contracts")
	}

	ts := time.Now().UTC()
	if resp.Timestamp > 0 {
		ts = time.UnixMilli(resp.Timestamp).UTC()
	}

	snapshot := &models.ChainSnapshot{
		Ticker:    strings.ToUpper(ticker),
		Timestamp: ts,
	}
	for _, c := range resp.Contracts {
		contract, ok := normalizeContract(c)
		if !ok {
			continue
		}
		snapshot.Contracts = append(snapshot.Contracts, contract)
	}
	if len(snapshot.Contracts) == 0 {
		return nil, fmt.Errorf("every contract in the chain response was malformed")
	}
	return snapshot, nil
}

func normalizeContract(c chainContract) (models.OptionContract, bool) {
	if c.Symbol == "" {
		return models.OptionContract{}, false
	}
	if c.Volume == nil || c.OpenInterest == nil || c.LastPrice == nil {
		return models.OptionContract{}, false
	}

	// Some vendors omit contract terms and rely on the OCC symbol carrying
	// them. Backfill strike, expiration and type from the symbol when absent.
	var occ *symbols.Contract
	if c.Strike == nil || c.Expiration == "" || c.Type == "" {
		parsed, err := symbols.ParseOCC(c.Symbol)
		if err != nil {
			return models.OptionContract{}, false
		}
		occ = &parsed
	}

	if c.Strike == nil {
		c.Strike = &occ.Strike
	}
	if c.Expiration == "" {
		c.Expiration = occ.Expiration.Format("2006-01-02")
	}

	var typ models.OptionType
	switch strings.ToUpper(c.Type) {
	case "CALL", "C":
		typ = models.OptionCall
	case "PUT", "P":
		typ = models.OptionPut
	case "":
		typ = occ.Type
	default:
		return models.OptionContract{}, false
	}

	premium := c.Premium
	if premium == 0 {
		// contract-multiplier notional when the vendor omits premium
		premium = *c.LastPrice * float64(*c.Volume) * 100
	}

	return models.OptionContract{
		Symbol:       c.Symbol,
		Strike:       *c.Strike,
		Expiration:   c.Expiration,
		Type:         typ,
		Volume:       *c.Volume,
		OpenInterest: *c.OpenInterest,
		LastPrice:    *c.LastPrice,
		Bid:          c.Bid,
		Ask:          c.Ask,
		Premium:      premium,
		Delta:        c.Delta,
		ImpliedVol:   c.ImpliedVol,
	}, true
}

// classifySide infers which side of the book the last trade hit.
func classifySide(c models.OptionContract) models.TradeSide {
	if c.Bid <= 0 && c.Ask <= 0 {
		return models.SideUnknown
	}
	switch {
	case c.Ask > 0 && c.LastPrice >= c.Ask:
		return models.SideAsk
	case c.Bid > 0 && c.LastPrice <= c.Bid:
		return models.SideBid
	default:
		return models.SideMid
	}
}
