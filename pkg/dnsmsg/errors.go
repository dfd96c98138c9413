package dnsmsg

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyName is returned when a query has no domain name.
	ErrEmptyName = errors.New("empty domain name")

	// ErrEmptyLabel is returned for names such as "a..b".
	ErrEmptyLabel = errors.New("empty label in domain name")

	// ErrLabelTooLong is returned when a label exceeds MaxLabelLen bytes.
	ErrLabelTooLong = errors.New("label longer than 63 bytes")

	// ErrNameTooLong is returned when the encoded name exceeds MaxNameLen bytes.
	ErrNameTooLong = errors.New("domain name longer than 255 bytes")

	// ErrShortMessage is returned when a message is shorter than the header.
	ErrShortMessage = errors.New("message shorter than DNS header")
)

// EncodingError is returned by [Encode] when a query cannot be put on the wire.
type EncodingError struct {
	Name string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("dnsmsg: cannot encode %q: %v", e.Name, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodeError is returned by [Decode] when a message is too short to inspect.
type DecodeError struct {
	Len int
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("dnsmsg: cannot decode %d byte message: %v", e.Len, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
