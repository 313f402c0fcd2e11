package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fetch failures so callers can branch without parsing
// error strings.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindTimeout
	KindExhausted
	KindSessionRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindExhausted:
		return "exhausted"
	case KindSessionRejected:
		return "session_rejected"
	default:
		return "unknown"
	}
}

// Error is the typed failure the fetch client surfaces once its internal
// retries are spent. It wraps the last underlying cause when one exists.
type Error struct {
	Kind     ErrorKind
	Host     string
	Attempts int
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: host=%s attempts=%d", e.Kind, e.Host, e.Attempts)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err is a fetch error whose retry budget ran out.
func IsExhausted(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindExhausted
}

// IsTimeout reports whether err is a fetch error caused by a deadline.
func IsTimeout(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindTimeout
}
