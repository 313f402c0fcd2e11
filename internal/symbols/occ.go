package symbols

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"optionflow/internal/models"
)

// Contract is an OCC-style option symbol broken into its parts, e.g.
// AAPL240119C00150000 -> AAPL, 2024-01-19, CALL, 150.00.
type Contract struct {
	Underlying string
	Expiration time.Time
	Type       models.OptionType
	Strike     float64
}

// ParseOCC decodes an OCC-style option symbol. Vendors pad the underlying to
// six characters; both padded and compact forms are accepted.
func ParseOCC(symbol string) (Contract, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) < 16 {
		return Contract{}, fmt.Errorf("symbol %q too short for OCC format", symbol)
	}

	tail := s[len(s)-15:]
	underlying := strings.TrimSpace(s[:len(s)-15])
	if underlying == "" {
		return Contract{}, fmt.Errorf("symbol %q has no underlying", symbol)
	}

	exp, err := time.Parse("060102", tail[:6])
	if err != nil {
		return Contract{}, fmt.Errorf("symbol %q has invalid expiration: %w", symbol, err)
	}

	var typ models.OptionType
	switch tail[6] {
	case 'C':
		typ = models.OptionCall
	case 'P':
		typ = models.OptionPut
	default:
		return Contract{}, fmt.Errorf("symbol %q has invalid type %q", symbol, tail[6])
	}

	milli, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return Contract{}, fmt.Errorf("symbol %q has invalid strike: %w", symbol, err)
	}

	return Contract{
		Underlying: underlying,
		Expiration: exp,
		Type:       typ,
		Strike:     float64(milli) / 1000,
	}, nil
}

// BuildOCC encodes a contract back to the compact OCC form.
func BuildOCC(c Contract) string {
	typ := "C"
	if c.Type == models.OptionPut {
		typ = "P"
	}
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(c.Underlying),
		c.Expiration.Format("060102"),
		typ,
		int64(c.Strike*1000+0.5),
	)
}
