package symbols

import (
	"testing"
	"time"

	"optionflow/internal/models"
)

func TestParseOCC(t *testing.T) {
	c, err := ParseOCC("AAPL240119C00150000")
	if err != nil {
		t.Fatalf("ParseOCC failed: %v", err)
	}
	if c.Underlying != "AAPL" {
		t.Fatalf("expected underlying AAPL, got %q", c.Underlying)
	}
	if c.Type != models.OptionCall {
		t.Fatalf("expected call, got %q", c.Type)
	}
	if c.Strike != 150 {
		t.Fatalf("expected strike 150, got %v", c.Strike)
	}
	want := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	if !c.Expiration.Equal(want) {
		t.Fatalf("expected expiration %v, got %v", want, c.Expiration)
	}
}

func TestParseOCCPaddedUnderlying(t *testing.T) {
	c, err := ParseOCC("F     241220P00012500")
	if err != nil {
		t.Fatalf("ParseOCC failed: %v", err)
	}
	if c.Underlying != "F" {
		t.Fatalf("expected underlying F, got %q", c.Underlying)
	}
	if c.Type != models.OptionPut {
		t.Fatalf("expected put, got %q", c.Type)
	}
	if c.Strike != 12.5 {
		t.Fatalf("expected strike 12.5, got %v", c.Strike)
	}
}

func TestParseOCCRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"AAPL",
		"AAPL240119X00150000",
		"AAPL24AB19C00150000",
		"AAPL240119C0015000Z",
	}
	for _, sym := range cases {
		if _, err := ParseOCC(sym); err == nil {
			t.Errorf("expected error for %q", sym)
		}
	}
}

func TestBuildOCCRoundTrip(t *testing.T) {
	orig := Contract{
		Underlying: "TSLA",
		Expiration: time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC),
		Type:       models.OptionPut,
		Strike:     222.5,
	}
	sym := BuildOCC(orig)
	if sym != "TSLA240621P00222500" {
		t.Fatalf("unexpected symbol %q", sym)
	}

	parsed, err := ParseOCC(sym)
	if err != nil {
		t.Fatalf("ParseOCC failed: %v", err)
	}
	if parsed != orig {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, orig)
	}
}
