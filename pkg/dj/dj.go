// Package dj provides a DoH JSON API client provided by some DNS providers,
// including Google, Cloudflare, and Quad9.
//
// This is different from [RFC8484], which came later,
// and became the generally accepted standard for DoH.
//
// [RFC8484]: https://tools.ietf.org/html/rfc8484
package dj

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ContentType is the media type requested from JSON API servers.
const ContentType = "application/dns-json"

// maxResponseSize bounds how much of a JSON body is read.
const maxResponseSize = 1 << 20

// recordA is asked for when a request names no type.
const recordA = "A"

// Shape selects how the query is put in the request URL. Providers are not
// compatible with each other at this layer, so the caller picks the shape
// matching the server.
type Shape int

const (
	// ShapeNameType uses ?name=<host>&type=<type>.
	ShapeNameType Shape = iota

	// ShapeDNSParam uses ?dns=<host>.
	ShapeDNSParam
)

func (s Shape) String() string {
	switch s {
	case ShapeNameType:
		return "name"
	case ShapeDNSParam:
		return "dns"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape parses the names returned by [Shape.String].
func ParseShape(s string) (Shape, error) {
	switch s {
	case "name", "":
		return ShapeNameType, nil
	case "dns":
		return ShapeDNSParam, nil
	default:
		return 0, fmt.Errorf("dj: unknown URL shape %q", s)
	}
}

// Request is a DNS query to a DoH server using the JSON API.
type Request struct {
	Name  string // domain name (e.g. google.com)
	Type  string // record type (e.g. A, AAAA)
	Shape Shape  // URL shape expected by the server
}

// Response is a DNS response from a DoH JSON API server.
type Response struct {
	Status   int  `json:"Status"` // DNS response code
	TC       bool `json:"TC"`     // Truncated
	RD       bool `json:"RD"`     // Recursion Desired
	RA       bool `json:"RA"`     // Recursion Available
	AD       bool `json:"AD"`     // Authenticated Data
	CD       bool `json:"CD"`     // Checking Disabled
	Question []struct {
		Name string `json:"name"`
		Type int    `json:"type"`
	} `json:"Question"`
	Answer []struct {
		Name string `json:"name"`
		Type int    `json:"type"`
		TTL  int    `json:"TTL"`
		Data string `json:"data"`
	} `json:"Answer"`
}

// Answered reports whether the server returned a non-empty Answer.
func (r *Response) Answered() bool {
	return len(r.Answer) > 0
}

// KnownServer is a known DoH server URL.
type KnownServer = string

var (
	Google     KnownServer = "https://dns.google/resolve"
	Cloudflare KnownServer = "https://cloudflare-dns.com/dns-query"
	Quad9      KnownServer = "https://dns.quad9.net:5053/dns-query"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Server string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dj: %q HTTP request returned status code: %d (%s)", e.Server, e.Code, http.StatusText(e.Code))
}

// Query performs a DNS query using a DoH server.
func Query(ctx context.Context, httpClient *http.Client, server string, req *Request) (*Response, error) {
	// Prepare the HTTP request, including the relevant headers and query params.
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, server, nil)
	if err != nil {
		return nil, fmt.Errorf("dj: error creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Accept", ContentType)
	httpReq.Header.Set("User-Agent", "dnsprobe")

	q := httpReq.URL.Query()
	switch req.Shape {
	case ShapeDNSParam:
		q.Set("dns", req.Name)
	default:
		typ := req.Type
		if typ == "" {
			typ = recordA
		}
		q.Set("name", req.Name)
		q.Set("type", typ)
	}

	httpReq.URL.RawQuery = q.Encode()

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dj: error performing HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{Server: server, Code: httpResp.StatusCode}
	}

	resp := &Response{}

	err = json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseSize)).Decode(resp)
	if err != nil {
		return nil, fmt.Errorf("dj: error decoding JSON response: %w", err)
	}

	return resp, nil
}
