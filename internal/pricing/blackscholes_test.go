package pricing

import (
	"errors"
	"math"
	"testing"

	"optionflow/internal/models"
)

func TestExpectedRangeOneSigma(t *testing.T) {
	r, err := ExpectedRangeZ(100, 0.2, 1.0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(r.Lower-81.87) > 0.1 {
		t.Fatalf("lower bound = %f, want ~81.9", r.Lower)
	}
	if math.Abs(r.Upper-122.14) > 0.1 {
		t.Fatalf("upper bound = %f, want ~122.1", r.Upper)
	}
}

func TestExpectedRangeConfidenceConversion(t *testing.T) {
	// 95% confidence corresponds to roughly 1.96 standard deviations
	r, err := ExpectedRange(100, 0.2, 1.0, 0.95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := ExpectedRangeZ(100, 0.2, 1.0, 1.959964)
	if math.Abs(r.Lower-want.Lower) > 0.01 || math.Abs(r.Upper-want.Upper) > 0.01 {
		t.Fatalf("confidence conversion off: got %+v want %+v", r, want)
	}
}

func TestExpectedRangeScalesWithTime(t *testing.T) {
	yearly, _ := ExpectedRangeZ(100, 0.2, 1.0, 1)
	quarterly, _ := ExpectedRangeZ(100, 0.2, 0.25, 1)
	if quarterly.Upper >= yearly.Upper || quarterly.Lower <= yearly.Lower {
		t.Fatalf("shorter expiry must yield a tighter range: %+v vs %+v", quarterly, yearly)
	}
}

func TestExpectedRangeInputValidation(t *testing.T) {
	cases := []struct {
		name                string
		spot, iv, tte, conf float64
	}{
		{"zero spot", 0, 0.2, 1, 0.68},
		{"negative spot", -5, 0.2, 1, 0.68},
		{"negative vol", 100, -0.1, 1, 0.68},
		{"zero expiry", 100, 0.2, 0, 0.68},
		{"confidence too high", 100, 0.2, 1, 1},
		{"confidence too low", 100, 0.2, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExpectedRange(tc.spot, tc.iv, tc.tte, tc.conf)
			var ie *InputError
			if !errors.As(err, &ie) {
				t.Fatalf("expected InputError, got %v", err)
			}
		})
	}
}

func TestDeltaCallPutParity(t *testing.T) {
	call, err := Delta(100, 100, 1, 0.045, 0.2, models.OptionCall)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	put, err := Delta(100, 100, 1, 0.045, 0.2, models.OptionPut)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// call delta - put delta = 1 under Black-Scholes
	if math.Abs(call-put-1) > 1e-9 {
		t.Fatalf("parity violated: call=%f put=%f", call, put)
	}
	// at the money with positive drift the call delta sits just above 0.5
	if call <= 0.5 || call >= 0.7 {
		t.Fatalf("ATM call delta = %f", call)
	}
}

func TestDeltaDeepInTheMoney(t *testing.T) {
	call, _ := Delta(200, 100, 0.1, 0.045, 0.2, models.OptionCall)
	if call < 0.99 {
		t.Fatalf("deep ITM call delta = %f, want ~1", call)
	}
	put, _ := Delta(50, 100, 0.1, 0.045, 0.2, models.OptionPut)
	if put > -0.99 {
		t.Fatalf("deep ITM put delta = %f, want ~-1", put)
	}
}

func TestExpectedMove(t *testing.T) {
	move, err := ExpectedMove(100, 0.2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(move-20) > 1e-9 {
		t.Fatalf("expected move = %f, want 20", move)
	}
}
