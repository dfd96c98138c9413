package probe

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/picatz/dnsprobe/pkg/dj"
)

// TransportKind is the wire protocol used to reach a resolver.
type TransportKind int

const (
	// DoHWire is RFC 8484 DNS-over-HTTPS with binary messages.
	DoHWire TransportKind = iota

	// DoHJSON is a provider's DNS-over-HTTPS JSON API.
	DoHJSON

	// DoT is RFC 7858 DNS-over-TLS.
	DoT
)

func (k TransportKind) String() string {
	switch k {
	case DoHWire:
		return "doh-wire"
	case DoHJSON:
		return "doh-json"
	case DoT:
		return "dot"
	default:
		return fmt.Sprintf("TransportKind(%d)", int(k))
	}
}

// Profile binds a resolver endpoint to the transport needed to reach it.
//
// HTTPS kinds use URL (and Shape for DoHJSON); DoT uses Host and Port.
type Profile struct {
	Name  string
	Kind  TransportKind
	URL   string
	Shape dj.Shape
	Host  string
	Port  int

	// Addrs are well-known IP addresses of the resolver, if any. They are
	// only handed to the OS integration; probes always use URL or Host.
	Addrs []string
}

// Validate checks that the populated endpoint fields match the kind.
func (p Profile) Validate() error {
	switch p.Kind {
	case DoHWire, DoHJSON:
		if p.URL == "" {
			return &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("%s profile %q has no URL", p.Kind, p.Name)}
		}
		if p.Host != "" || p.Port != 0 {
			return &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("%s profile %q carries a TLS host:port", p.Kind, p.Name)}
		}
	case DoT:
		if p.Host == "" || p.Port <= 0 || p.Port > 65535 {
			return &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("dot profile %q needs host and port", p.Name)}
		}
		if p.URL != "" {
			return &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("dot profile %q carries an HTTPS URL", p.Name)}
		}
	default:
		return &ValidationError{Field: "transport", Reason: fmt.Sprintf("unknown transport %s", p.Kind)}
	}
	return nil
}

// Endpoint returns the string an OS resolver configuration would need:
// the URL for HTTPS profiles, host:port for DoT.
func (p Profile) Endpoint() string {
	if p.Kind == DoT {
		return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	return p.URL
}

// Server returns the label shown next to a verdict: host:port for DoT
// and the URL host (with its port, if any) for HTTPS.
func (p Profile) Server() string {
	if p.Kind == DoT {
		return p.Endpoint()
	}
	if u, err := url.Parse(p.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return p.URL
}

// NewHTTPSProfile builds a custom DoH profile from a user-supplied URL.
func NewHTTPSProfile(kind TransportKind, rawURL string) (Profile, error) {
	if kind != DoHWire && kind != DoHJSON {
		return Profile{}, &ValidationError{Field: "transport", Reason: fmt.Sprintf("%s is not an HTTPS transport", kind)}
	}

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Profile{}, &ValidationError{Field: "endpoint", Reason: "a URL is required"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Profile{}, &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("invalid URL %q: %v", rawURL, err)}
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return Profile{}, &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("invalid URL %q: want https://host/path", rawURL)}
	}

	return Profile{Name: "custom", Kind: kind, URL: u.String()}, nil
}

// NewTLSProfile builds a custom DoT profile from "host:port" text.
func NewTLSProfile(hostPort string) (Profile, error) {
	host, port, err := ParseHostPort(hostPort)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Name: "custom", Kind: DoT, Host: host, Port: port}, nil
}

// ParseHostPort splits "host:port". The text must have exactly two
// colon-separated components; IPv6 hosts must be bracketed ("[::1]:853").
func ParseHostPort(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	invalid := func(reason string) (string, int, error) {
		return "", 0, &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("invalid endpoint %q: %s", s, reason)}
	}

	var host, portStr string
	if strings.HasPrefix(s, "[") {
		h, p, err := net.SplitHostPort(s)
		if err != nil {
			return invalid("expected [ipv6]:port")
		}
		host, portStr = h, p
	} else {
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			return invalid("expected host:port")
		}
		host, portStr = parts[0], parts[1]
	}

	if host == "" {
		return invalid("missing host")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return invalid("port must be a number between 1 and 65535")
	}

	return host, port, nil
}
