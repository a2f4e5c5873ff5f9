package feed

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable = errors.New("feed unavailable")
	ErrMalformed   = errors.New("malformed notification")
)

// UnavailableError is an infrastructure fault of a Source. The detector
// recovers by skipping the ledger update for that round.
type UnavailableError struct {
	Source string
	Err    error
}

func Unavailable(source string, err error) *UnavailableError {
	return &UnavailableError{Source: source, Err: err}
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("feed %s unavailable", e.Source)
	}
	return fmt.Sprintf("feed %s unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Err}
}

// MalformedError describes a single record that could not be parsed.
type MalformedError struct {
	Record string
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed notification %q: %s: %v", e.Record, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed notification %q: %s", e.Record, e.Reason)
}

func (e *MalformedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformed}
	}
	return []error{ErrMalformed, e.Err}
}
