package scanner

import (
	"errors"
	"fmt"
)

// ScanErrorKind classifies scan failures.
type ScanErrorKind int

const (
	KindParseFailure ScanErrorKind = iota
	KindTimeout
	KindCancelled
	KindFetch
)

func (k ScanErrorKind) String() string {
	switch k {
	case KindParseFailure:
		return "parse_failure"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// ScanError is the typed failure a scan surfaces. A failed scan never yields
// partial records.
type ScanError struct {
	Kind   ScanErrorKind
	Ticker string
	Err    error
}

func (e *ScanError) Error() string {
	msg := fmt.Sprintf("scan %s: ticker=%s", e.Kind, e.Ticker)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is a scan aborted by cancellation.
func IsCancelled(err error) bool {
	var se *ScanError
	return errors.As(err, &se) && se.Kind == KindCancelled
}

// IsParseFailure reports whether err is a malformed-response failure.
func IsParseFailure(err error) bool {
	var se *ScanError
	return errors.As(err, &se) && se.Kind == KindParseFailure
}
