// Package resolved renders systemd-resolved drop-in configuration for a
// resolver that passed a probe.
//
// Nothing here touches the system: installing the file under
// [DropInDir] and restarting systemd-resolved needs elevated privileges
// and is left to the operator or an outer tool.
package resolved

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/picatz/dnsprobe/pkg/probe"
)

// DropInDir is where systemd-resolved reads drop-in configuration from.
const DropInDir = "/etc/systemd/resolved.conf.d"

// DropInName is the file name used for the rendered drop-in.
const DropInName = "dnsprobe.conf"

// RestartCommand makes systemd-resolved pick up drop-in changes.
const RestartCommand = "systemctl restart systemd-resolved.service"

var (
	// ErrUnsupportedTransport is returned for DoH profiles: systemd-resolved
	// only speaks plain DNS and DNS-over-TLS.
	ErrUnsupportedTransport = errors.New("resolved: systemd-resolved cannot use DNS-over-HTTPS")

	// ErrNoAddress is returned when no IP address is known for a DoT profile.
	ErrNoAddress = errors.New("resolved: systemd-resolved needs the resolver's IP address")
)

// Render returns the drop-in contents pointing systemd-resolved at the
// profile's DoT endpoint, e.g.
//
//	[Resolve]
//	DNS=9.9.9.9#dns.quad9.net 149.112.112.112#dns.quad9.net
//	DNSOverTLS=yes
//
// Catalog profiles carry their well-known addresses. Custom profiles work
// when their host is an IP address; the TLS server name is then omitted.
func Render(p probe.Profile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if p.Kind != probe.DoT {
		return "", fmt.Errorf("%w: %s profile %q (%s)", ErrUnsupportedTransport, p.Kind, p.Name, p.Endpoint())
	}

	servers := make([]string, 0, len(p.Addrs)+1)
	switch {
	case len(p.Addrs) > 0:
		for _, addr := range p.Addrs {
			servers = append(servers, server(addr, p.Port, p.Host))
		}
	case net.ParseIP(p.Host) != nil:
		servers = append(servers, server(p.Host, p.Port, ""))
	default:
		return "", fmt.Errorf("%w: %s", ErrNoAddress, p.Endpoint())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by dnsprobe for %s (%s).\n", p.Name, p.Endpoint())
	fmt.Fprintf(&b, "# Install as %s/%s and run: %s\n", DropInDir, DropInName, RestartCommand)
	b.WriteString("[Resolve]\n")
	fmt.Fprintf(&b, "DNS=%s\n", strings.Join(servers, " "))
	b.WriteString("DNSOverTLS=yes\n")
	return b.String(), nil
}

// server formats one DNS= entry: ADDRESS[:PORT][#SERVER_NAME], with IPv6
// addresses bracketed whenever a port follows.
func server(addr string, port int, name string) string {
	s := addr
	if port != 0 && port != 853 {
		s = net.JoinHostPort(addr, fmt.Sprint(port))
	} else if strings.Contains(addr, ":") {
		s = "[" + addr + "]"
	}
	if name != "" && net.ParseIP(name) == nil {
		s += "#" + name
	}
	return s
}

// Reset returns the shell steps that remove the drop-in written from
// [Render] and return systemd-resolved to its default servers.
func Reset() string {
	var b strings.Builder
	b.WriteString("# Remove the dnsprobe drop-in and restore the default resolvers.\n")
	fmt.Fprintf(&b, "rm -f %s/%s\n", DropInDir, DropInName)
	fmt.Fprintf(&b, "%s\n", RestartCommand)
	return b.String()
}
