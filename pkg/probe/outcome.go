package probe

import (
	"fmt"
	"time"
)

// Status is the verdict of a probe.
type Status int

const (
	// Answered means the resolver returned at least one answer.
	Answered Status = iota

	// NotAnswered means the resolver replied without answers.
	NotAnswered

	// TransportFailed means no usable reply was obtained.
	TransportFailed

	// Invalid means the inputs were rejected before any I/O.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Answered:
		return "answered"
	case NotAnswered:
		return "not answered"
	case TransportFailed:
		return "transport failed"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of one probe.
type Outcome struct {
	Status Status

	// Records is the number of answer records, when known.
	Records int

	// Answers holds the answer records as the resolver returned them:
	// presentation format for wire responses, the data field for JSON.
	// It may be shorter than Records when a wire response could not be
	// fully unpacked.
	Answers []string

	// Err explains TransportFailed and Invalid outcomes. Use errors.As
	// with *ValidationError, *TransportError, *dnsmsg.DecodeError or
	// *dnsmsg.EncodingError to tell causes apart.
	Err error

	// Profile is the resolver that was probed.
	Profile Profile

	// Duration is the time spent in the transport.
	Duration time.Duration
}

// Working reports whether the resolver answered the query.
func (o Outcome) Working() bool {
	return o.Status == Answered
}

// String renders the outcome as a single line for display.
func (o Outcome) String() string {
	switch o.Status {
	case Answered:
		return o.Profile.Server() + ": working"
	case Invalid:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "invalid input"
	default:
		return o.Profile.Server() + ": not working"
	}
}

// ValidationError reports bad or missing input. No I/O was attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// TransportError reports a connection, TLS, HTTP status, or timeout failure.
type TransportError struct {
	Kind     TransportKind
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
