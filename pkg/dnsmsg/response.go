package dnsmsg

import (
	"encoding/binary"

	"github.com/miekg/dns"
)

// Response is the part of a DNS response a probe cares about.
type Response struct {
	ID      uint16
	Flags   uint16
	Rcode   int
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16

	// Question is the raw question section, when it could be walked.
	Question []byte

	// Answers holds the answer records in presentation format. It is
	// empty when the message could not be fully unpacked.
	Answers []string
}

// Answered reports whether the response carries at least one answer record.
func (r *Response) Answered() bool {
	return r.ANCount > 0
}

// IsResponse reports whether the QR bit is set.
func (r *Response) IsResponse() bool {
	return r.Flags&0x8000 != 0
}

// Decode reads the header of a DNS message and, when possible, its
// question section and answer records. Only a message shorter than
// the header is an error.
func Decode(b []byte) (*Response, error) {
	if len(b) < HeaderLen {
		return nil, &DecodeError{Len: len(b), Err: ErrShortMessage}
	}

	flags := binary.BigEndian.Uint16(b[2:])
	resp := &Response{
		ID:      binary.BigEndian.Uint16(b[0:]),
		Flags:   flags,
		Rcode:   int(flags & 0x000f),
		QDCount: binary.BigEndian.Uint16(b[4:]),
		ANCount: binary.BigEndian.Uint16(b[6:]),
		NSCount: binary.BigEndian.Uint16(b[8:]),
		ARCount: binary.BigEndian.Uint16(b[10:]),
	}

	if resp.QDCount > 0 {
		resp.Question = questionSection(b, int(resp.QDCount))
	}

	if resp.ANCount > 0 {
		msg := new(dns.Msg)
		if err := msg.Unpack(b); err == nil {
			for _, rr := range msg.Answer {
				resp.Answers = append(resp.Answers, rr.String())
			}
		}
	}

	return resp, nil
}

// questionSection returns the bytes of the first n questions, or nil when
// the message is truncated or malformed.
func questionSection(b []byte, n int) []byte {
	off := HeaderLen
	for i := 0; i < n; i++ {
		for {
			if off >= len(b) {
				return nil
			}
			l := int(b[off])
			if l == 0 {
				off++
				break
			}
			if l&0xc0 == 0xc0 {
				// compression pointer, always two bytes and always last
				off += 2
				break
			}
			if l > MaxLabelLen {
				return nil
			}
			off += 1 + l
		}
		off += 4 // QTYPE + QCLASS
		if off > len(b) {
			return nil
		}
	}
	return b[HeaderLen:off]
}
