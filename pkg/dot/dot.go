// Package dot provides a DNS-over-TLS (DoT) client following [RFC7858].
//
// Besides the standard length-prefixed framing, the client can run the
// raw heuristic used by simple reachability probes: write the bare query,
// read once, and treat any bytes coming back as a sign of life.
//
// [RFC7858]: https://tools.ietf.org/html/rfc7858
package dot

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"time"
)

// DefaultPort is the well-known DoT port.
const DefaultPort = 853

// DefaultTimeout bounds a whole exchange when no other deadline applies.
const DefaultTimeout = 5 * time.Second

// maxRawRead is the buffer used for the single read in [FramingRaw] mode.
const maxRawRead = 4096

var (
	// ErrEmptyResponse is returned when the server sent nothing back.
	ErrEmptyResponse = errors.New("dot: empty response")

	// ErrQueryTooLarge is returned when a query does not fit a 16-bit frame.
	ErrQueryTooLarge = errors.New("dot: query larger than 65535 bytes")
)

// Framing selects how DNS messages are delimited on the TLS stream.
type Framing int

const (
	// FramingLengthPrefixed prefixes each message with its 2-byte
	// big-endian length, as RFC 7858 requires.
	FramingLengthPrefixed Framing = iota

	// FramingRaw writes the bare query and performs one bounded read.
	FramingRaw
)

func (f Framing) String() string {
	switch f {
	case FramingLengthPrefixed:
		return "prefixed"
	case FramingRaw:
		return "raw"
	default:
		return fmt.Sprintf("Framing(%d)", int(f))
	}
}

// ParseFraming parses the names returned by [Framing.String].
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "prefixed", "":
		return FramingLengthPrefixed, nil
	case "raw":
		return FramingRaw, nil
	default:
		return 0, fmt.Errorf("dot: unknown framing %q", s)
	}
}

// Dialer abstracts over [*tls.Dialer].
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Exchanger sends DNS queries over TLS.
//
// Construct using [NewExchanger].
type Exchanger struct {
	// Dialer establishes the TCP connection and the TLS session.
	Dialer Dialer

	// Framing selects the message framing.
	Framing Framing

	// Timeout bounds a whole exchange, from dial to last read.
	Timeout time.Duration
}

// NewExchanger creates an [*Exchanger] verifying servers against the
// system roots, or against config.RootCAs when config is not nil.
func NewExchanger(config *tls.Config, timeout time.Duration) *Exchanger {
	if config == nil {
		config = &tls.Config{}
	} else {
		config = config.Clone()
	}
	if config.MinVersion == 0 {
		config.MinVersion = tls.VersionTLS12
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Exchanger{
		Dialer: &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: timeout},
			Config:    config,
		},
		Framing: FramingLengthPrefixed,
		Timeout: timeout,
	}
}

// Exchange sends query to endpoint ("host:port") and returns the response
// bytes. With [FramingRaw] the response is whatever the single read
// returned and may not be a complete DNS message.
//
// The connection is closed before Exchange returns and as soon as ctx is done.
func (e *Exchanger) Exchange(ctx context.Context, endpoint string, query []byte) ([]byte, error) {
	if len(query) > math.MaxUint16 {
		return nil, ErrQueryTooLarge
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 1. dial and handshake
	conn, err := e.Dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("dot: error connecting to %s: %w", endpoint, err)
	}

	// 2. close the connection when we are done or the caller gives up
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// 3. exchange
	var resp []byte
	switch e.Framing {
	case FramingRaw:
		resp, err = exchangeRaw(conn, query)
	default:
		resp, err = exchangePrefixed(conn, query)
	}
	if err != nil {
		switch ctxErr := ctx.Err(); {
		case ctxErr != nil && !errors.Is(err, ctxErr):
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		case ctxErr == nil && errors.Is(err, os.ErrDeadlineExceeded):
			// the conn deadline fired just ahead of the context timer
			err = fmt.Errorf("%w (%v)", context.DeadlineExceeded, err)
		}
		return nil, fmt.Errorf("dot: error exchanging with %s: %w", endpoint, err)
	}
	return resp, nil
}

func exchangePrefixed(conn net.Conn, query []byte) ([]byte, error) {
	frame := make([]byte, 2, 2+len(query))
	binary.BigEndian.PutUint16(frame, uint16(len(query)))
	frame = append(frame, query...)

	if _, err := conn.Write(frame); err != nil {
		return nil, err
	}

	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyResponse
		}
		return nil, err
	}

	resp := make([]byte, binary.BigEndian.Uint16(header))
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func exchangeRaw(conn net.Conn, query []byte) ([]byte, error) {
	if _, err := conn.Write(query); err != nil {
		return nil, err
	}

	buf := make([]byte, maxRawRead)
	n, err := conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, ErrEmptyResponse
	}
	return nil, err
}
