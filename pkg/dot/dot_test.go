package dot_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/picatz/dnsprobe/pkg/dnsmsg"
	"github.com/picatz/dnsprobe/pkg/dot"
	"github.com/stretchr/testify/require"
)

// newTLSListener returns a TLS listener on 127.0.0.1 and a client config
// trusting its certificate.
func newTLSListener(t *testing.T) (net.Listener, *tls.Config) {
	t.Helper()

	hs := httptest.NewTLSServer(http.NotFoundHandler())
	serverConfig := hs.TLS.Clone()
	serverConfig.NextProtos = nil
	pool := x509.NewCertPool()
	pool.AddCert(hs.Certificate())
	hs.Close()

	l, err := tls.Listen("tcp", "127.0.0.1:0", serverConfig)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return l, &tls.Config{RootCAs: pool}
}

// newDNSServer serves DNS over TLS with the given handler.
func newDNSServer(t *testing.T, handler dns.HandlerFunc) (string, *tls.Config) {
	t.Helper()

	l, clientConfig := newTLSListener(t)
	started := make(chan struct{})
	srv := &dns.Server{
		Listener:          l,
		Net:               "tcp-tls",
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return l.Addr().String(), clientConfig
}

// answerA replies to every query with n A records.
func answerA(n int) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg).SetReply(req)
		for i := 0; i < n; i++ {
			resp.Answer = append(resp.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.IPv4(192, 0, 2, byte(i+1)),
			})
		}
		w.WriteMsg(resp)
	}
}

// serveOnce accepts connections and handles each with fn.
func serveOnce(t *testing.T, l net.Listener, fn func(net.Conn)) {
	t.Helper()

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				fn(conn)
			}()
		}
	}()
}

func testQuery(t *testing.T) []byte {
	t.Helper()

	b, err := dnsmsg.Encode(dnsmsg.NewQuery("example.com", dnsmsg.KindA).WithID(dns.Id()))
	require.NoError(t, err)
	return b
}

func TestExchangePrefixed(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		addr, config := newDNSServer(t, answerA(n))

		ex := dot.NewExchanger(config, 2*time.Second)
		b, err := ex.Exchange(context.Background(), addr, testQuery(t))
		require.NoError(t, err)

		resp, err := dnsmsg.Decode(b)
		require.NoError(t, err)
		require.Equal(t, uint16(n), resp.ANCount)
		require.Equal(t, n > 0, resp.Answered())
	}
}

func TestExchangeRaw(t *testing.T) {
	l, config := newTLSListener(t)
	serveOnce(t, l, func(conn net.Conn) {
		buf := make([]byte, 512)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write([]byte("any bytes at all"))
	})

	ex := dot.NewExchanger(config, 2*time.Second)
	ex.Framing = dot.FramingRaw

	b, err := ex.Exchange(context.Background(), l.Addr().String(), testQuery(t))
	require.NoError(t, err)
	require.Equal(t, []byte("any bytes at all"), b)
}

func TestExchangeEmptyResponse(t *testing.T) {
	for _, framing := range []dot.Framing{dot.FramingLengthPrefixed, dot.FramingRaw} {
		t.Run(framing.String(), func(t *testing.T) {
			l, config := newTLSListener(t)
			serveOnce(t, l, func(conn net.Conn) {
				buf := make([]byte, 512)
				conn.Read(buf)
			})

			ex := dot.NewExchanger(config, 2*time.Second)
			ex.Framing = framing

			_, err := ex.Exchange(context.Background(), l.Addr().String(), testQuery(t))
			require.ErrorIs(t, err, dot.ErrEmptyResponse)
		})
	}
}

func TestExchangeTimeout(t *testing.T) {
	l, config := newTLSListener(t)
	serveOnce(t, l, func(conn net.Conn) {
		// Complete the handshake, then say nothing.
		io.Copy(io.Discard, conn)
	})

	ex := dot.NewExchanger(config, 200*time.Millisecond)

	start := time.Now()
	_, err := ex.Exchange(context.Background(), l.Addr().String(), testQuery(t))
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestExchangeCanceled(t *testing.T) {
	l, config := newTLSListener(t)
	serveOnce(t, l, func(conn net.Conn) {
		io.Copy(io.Discard, conn)
	})

	ex := dot.NewExchanger(config, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := ex.Exchange(ctx, l.Addr().String(), testQuery(t))
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestExchangeUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ex := dot.NewExchanger(nil, time.Second)
	_, err = ex.Exchange(context.Background(), addr, testQuery(t))
	require.Error(t, err)
}

func TestExchangeUntrustedCertificate(t *testing.T) {
	addr, _ := newDNSServer(t, answerA(1))

	// System roots do not include the test certificate.
	ex := dot.NewExchanger(nil, 2*time.Second)
	_, err := ex.Exchange(context.Background(), addr, testQuery(t))
	require.Error(t, err)

	var certErr *tls.CertificateVerificationError
	require.True(t, errors.As(err, &certErr), "got %v", err)
}

func TestParseFraming(t *testing.T) {
	for _, framing := range []dot.Framing{dot.FramingLengthPrefixed, dot.FramingRaw} {
		got, err := dot.ParseFraming(framing.String())
		require.NoError(t, err)
		require.Equal(t, framing, got)
	}

	_, err := dot.ParseFraming("udp")
	require.Error(t, err)
}
