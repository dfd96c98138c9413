package doh

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/miekg/dns"
)

// Handler answers a DNS query received by a DoH server.
type Handler func(w http.ResponseWriter, httpReq *http.Request, dnsReq *dns.Msg) (*dns.Msg, error)

// Answer returns a handler replying to every A query with the given
// addresses and to anything else with an empty answer section.
func Answer(addrs ...string) Handler {
	return func(w http.ResponseWriter, r *http.Request, req *dns.Msg) (*dns.Msg, error) {
		resp := new(dns.Msg).SetReply(req)
		if len(req.Question) != 1 || req.Question[0].Qtype != dns.TypeA {
			return resp, nil
		}
		for _, addr := range addrs {
			rr, err := dns.NewRR(req.Question[0].Name + " 300 IN A " + addr)
			if err != nil {
				return nil, err
			}
			resp.Answer = append(resp.Answer, rr)
		}
		return resp, nil
	}
}

// NewServerMux returns a mux serving handler at /dns-query over both
// [RFC 8484] methods: POST with a binary body and GET with a base64url
// "dns" parameter.
//
// It stands in for a real resolver when testing probes.
//
// [RFC 8484]: https://tools.ietf.org/html/rfc8484
func NewServerMux(handler Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/dns-query", func(w http.ResponseWriter, r *http.Request) {
		raw, status := readQuery(r)
		if status != http.StatusOK {
			http.Error(w, http.StatusText(status), status)
			return
		}

		req := new(dns.Msg)
		if err := req.Unpack(raw); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		if handler == nil {
			http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
			return
		}

		resp, err := handler(w, r, req)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		b, err := resp.Pack()
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", ContentType)
		w.Write(b)
	})

	return mux
}

// readQuery extracts the raw DNS query from r, or returns the HTTP status
// explaining why it could not.
func readQuery(r *http.Request) ([]byte, int) {
	switch r.Method {
	case http.MethodPost:
		if r.Header.Get("Content-Type") != ContentType {
			return nil, http.StatusUnsupportedMediaType
		}
		b, err := io.ReadAll(io.LimitReader(r.Body, maxResponseSize))
		if err != nil {
			return nil, http.StatusBadRequest
		}
		return b, http.StatusOK

	case http.MethodGet:
		param := r.URL.Query().Get("dns")
		if param == "" {
			return nil, http.StatusBadRequest
		}
		b, err := base64.RawURLEncoding.DecodeString(param)
		if err != nil {
			return nil, http.StatusBadRequest
		}
		return b, http.StatusOK

	default:
		return nil, http.StatusMethodNotAllowed
	}
}
