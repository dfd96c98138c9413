// Package dnsmsg encodes DNS address queries and inspects DNS responses
// in the binary [RFC1035] wire format.
//
// The encoder is written by hand so the exact bytes put on the wire are
// known: a 12-byte header, one question, no EDNS(0) record. The decoder only
// reads as much of a response as a probe needs to decide whether the server
// answered.
//
// [RFC1035]: https://tools.ietf.org/html/rfc1035
package dnsmsg

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

const (
	// HeaderLen is the length of the fixed DNS message header.
	HeaderLen = 12

	// MaxLabelLen is the longest label allowed in a domain name.
	MaxLabelLen = 63

	// MaxNameLen is the longest domain name allowed once encoded as labels.
	MaxNameLen = 255

	// flagRecursionDesired is a standard query (opcode 0) with RD set.
	flagRecursionDesired uint16 = 0x0100
)

// RecordKind is the type of record a query asks for.
type RecordKind uint16

const (
	// KindA asks for IPv4 addresses.
	KindA = RecordKind(dns.TypeA)

	// KindAAAA asks for IPv6 addresses.
	KindAAAA = RecordKind(dns.TypeAAAA)
)

// String returns the record type name, such as "A".
func (k RecordKind) String() string {
	if s, ok := dns.TypeToString[uint16(k)]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", uint16(k))
}

// ParseRecordKind parses a record type name. Only address lookups are supported.
func ParseRecordKind(s string) (RecordKind, error) {
	switch k := RecordKind(dns.StringToType[strings.ToUpper(strings.TrimSpace(s))]); k {
	case KindA, KindAAAA:
		return k, nil
	default:
		return 0, fmt.Errorf("dnsmsg: unsupported record type %q", s)
	}
}

// Query is a single-question DNS query.
//
// Construct using [NewQuery].
type Query struct {
	// Name is the domain name to query, without a trailing dot.
	Name string

	// Kind is the record type to query.
	Kind RecordKind

	// ID is the transaction ID. Zero is fine for DoH.
	ID uint16
}

// NewQuery returns a query for the given name and record kind. The name is
// kept as given; normalization happens in [Encode].
func NewQuery(name string, kind RecordKind) Query {
	return Query{Name: name, Kind: kind}
}

// WithID returns a copy of the query using the given transaction ID.
func (q Query) WithID(id uint16) Query {
	q.ID = id
	return q
}

// Normalize prepares a domain name for encoding: it trims spaces, drops a
// single trailing dot, converts internationalized names to ASCII and lower
// cases the result.
func Normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return "", ErrEmptyName
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		// Underscores and other characters idna rejects still form valid
		// DNS labels, so fall back to the raw name.
		ascii = name
	}
	return strings.ToLower(ascii), nil
}

// Encode returns the wire representation of the query.
func Encode(q Query) ([]byte, error) {
	name, err := Normalize(q.Name)
	if err != nil {
		return nil, &EncodingError{Name: q.Name, Err: err}
	}

	qname, err := encodeName(name)
	if err != nil {
		return nil, &EncodingError{Name: q.Name, Err: err}
	}

	msg := make([]byte, HeaderLen, HeaderLen+len(qname)+4)
	binary.BigEndian.PutUint16(msg[0:], q.ID)
	binary.BigEndian.PutUint16(msg[2:], flagRecursionDesired)
	binary.BigEndian.PutUint16(msg[4:], 1) // QDCOUNT
	// ANCOUNT, NSCOUNT and ARCOUNT stay zero.

	msg = append(msg, qname...)
	msg = binary.BigEndian.AppendUint16(msg, uint16(q.Kind))
	msg = binary.BigEndian.AppendUint16(msg, dns.ClassINET)
	return msg, nil
}

// encodeName writes name as a sequence of length-prefixed labels followed
// by the zero-length root label.
func encodeName(name string) ([]byte, error) {
	out := make([]byte, 0, len(name)+2)
	for _, label := range strings.Split(name, ".") {
		switch {
		case len(label) == 0:
			return nil, ErrEmptyLabel
		case len(label) > MaxLabelLen:
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrLabelTooLong, label, len(label))
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	out = append(out, 0)
	if len(out) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return out, nil
}
