// Package doh provides a DNS-over-HTTPS (DoH) client
// implementation following [RFC8484].
//
// [RFC8484]: https://tools.ietf.org/html/rfc8484
package doh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// ContentType is the media type of a DNS message carried over HTTP.
const ContentType = "application/dns-message"

// maxResponseSize is the largest DNS message that fits a 16-bit length.
const maxResponseSize = 65535

// KnownServer is a known DoH server URL.
type KnownServer = string

var (
	Google     KnownServer = "https://dns.google/dns-query"
	Cloudflare KnownServer = "https://cloudflare-dns.com/dns-query"
	Quad9      KnownServer = "https://dns.quad9.net/dns-query"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Server string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("doh: %q HTTP request returned status code: %d (%s)", e.Server, e.Code, http.StatusText(e.Code))
}

// Exchange POSTs a wire-format DNS query to a DoH server and returns the
// raw DNS message found in the response body.
//
// The exchange is attempted once. Deadlines come from ctx and httpClient.
func Exchange(ctx context.Context, httpClient *http.Client, server string, query []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("doh: error creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", ContentType)
	httpReq.Header.Set("Accept", ContentType)
	httpReq.Header.Set("User-Agent", "dnsprobe")

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("doh: error performing HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{Server: server, Code: httpResp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("doh: error reading HTTP response body: %w", err)
	}

	return body, nil
}
