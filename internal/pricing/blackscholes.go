package pricing

import (
	"fmt"
	"math"

	"optionflow/internal/models"
)

// InputError reports invalid numeric arguments to the range calculator.
type InputError struct {
	Field string
	Value float64
}

func (e *InputError) Error() string {
	return fmt.Sprintf("pricing: invalid %s %g", e.Field, e.Value)
}

// Range is a log-normal price interval.
type Range struct {
	Lower float64
	Upper float64
}

// ExpectedRange computes the price interval implied by the Black-Scholes
// log-normal diffusion at the given confidence level (0 < confidence < 1,
// e.g. 0.68 for one standard deviation, 0.95 for two). Pure function, no I/O.
func ExpectedRange(spot, impliedVol, timeToExpiry, confidence float64) (Range, error) {
	if confidence <= 0 || confidence >= 1 {
		return Range{}, &InputError{Field: "confidence", Value: confidence}
	}
	z := math.Sqrt2 * math.Erfinv(confidence)
	return ExpectedRangeZ(spot, impliedVol, timeToExpiry, z)
}

// ExpectedRangeZ is ExpectedRange with the confidence already expressed as a
// z-score (number of standard deviations).
func ExpectedRangeZ(spot, impliedVol, timeToExpiry, z float64) (Range, error) {
	if err := validate(spot, impliedVol, timeToExpiry); err != nil {
		return Range{}, err
	}
	if z <= 0 {
		return Range{}, &InputError{Field: "z", Value: z}
	}

	sigma := impliedVol * math.Sqrt(timeToExpiry)
	return Range{
		Lower: spot * math.Exp(-z*sigma),
		Upper: spot * math.Exp(z*sigma),
	}, nil
}

// ExpectedMove is the one-sigma absolute move implied by the volatility.
func ExpectedMove(spot, impliedVol, timeToExpiry float64) (float64, error) {
	if err := validate(spot, impliedVol, timeToExpiry); err != nil {
		return 0, err
	}
	return spot * impliedVol * math.Sqrt(timeToExpiry), nil
}

// Delta returns the Black-Scholes delta of the contract.
func Delta(spot, strike, timeToExpiry, riskFreeRate, impliedVol float64, typ models.OptionType) (float64, error) {
	if err := validate(spot, impliedVol, timeToExpiry); err != nil {
		return 0, err
	}
	if strike <= 0 {
		return 0, &InputError{Field: "strike", Value: strike}
	}
	if impliedVol == 0 {
		// degenerate contract: delta collapses to a step function
		if spot > strike {
			if typ == models.OptionPut {
				return 0, nil
			}
			return 1, nil
		}
		if typ == models.OptionPut {
			return -1, nil
		}
		return 0, nil
	}

	d1 := (math.Log(spot/strike) + (riskFreeRate+impliedVol*impliedVol/2)*timeToExpiry) /
		(impliedVol * math.Sqrt(timeToExpiry))

	if typ == models.OptionPut {
		return normCDF(d1) - 1, nil
	}
	return normCDF(d1), nil
}

func validate(spot, impliedVol, timeToExpiry float64) error {
	if spot <= 0 {
		return &InputError{Field: "spot", Value: spot}
	}
	if impliedVol < 0 {
		return &InputError{Field: "implied volatility", Value: impliedVol}
	}
	if timeToExpiry <= 0 {
		return &InputError{Field: "time to expiry", Value: timeToExpiry}
	}
	return nil
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
