package probe

import (
	"fmt"
	"strings"

	"github.com/picatz/dnsprobe/pkg/dj"
	"github.com/picatz/dnsprobe/pkg/doh"
	"github.com/picatz/dnsprobe/pkg/dot"
)

// Selection is what a user picks: a well-known resolver or a kind of
// custom endpoint.
type Selection int

const (
	Cloudflare Selection = iota
	Google
	Quad9
	CustomHTTPS
	CustomJSON
	CustomTLS
)

var selectionNames = map[Selection]string{
	Cloudflare:  "cloudflare",
	Google:      "google",
	Quad9:       "quad9",
	CustomHTTPS: "custom-https",
	CustomJSON:  "custom-json",
	CustomTLS:   "custom-tls",
}

func (s Selection) String() string {
	if name, ok := selectionNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Selection(%d)", int(s))
}

// Custom reports whether the selection needs a user-supplied endpoint.
func (s Selection) Custom() bool {
	return s == CustomHTTPS || s == CustomJSON || s == CustomTLS
}

// ParseSelection parses the names returned by [Selection.String].
func ParseSelection(s string) (Selection, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for sel, name := range selectionNames {
		if name == s {
			return sel, nil
		}
	}
	return 0, &ValidationError{Field: "resolver", Reason: fmt.Sprintf("unknown resolver %q", s)}
}

// Catalog returns the well-known resolver profiles, in display order.
func Catalog() []Profile {
	return []Profile{
		{Name: "cloudflare", Kind: DoHWire, URL: doh.Cloudflare, Addrs: []string{"1.1.1.1", "1.0.0.1"}},
		{Name: "cloudflare-json", Kind: DoHJSON, URL: dj.Cloudflare, Shape: dj.ShapeNameType, Addrs: []string{"1.1.1.1", "1.0.0.1"}},
		{Name: "cloudflare-tls", Kind: DoT, Host: "one.one.one.one", Port: dot.DefaultPort, Addrs: []string{"1.1.1.1", "1.0.0.1"}},
		{Name: "google", Kind: DoHJSON, URL: dj.Google, Shape: dj.ShapeNameType, Addrs: []string{"8.8.8.8", "8.8.4.4"}},
		{Name: "google-wire", Kind: DoHWire, URL: doh.Google, Addrs: []string{"8.8.8.8", "8.8.4.4"}},
		{Name: "google-tls", Kind: DoT, Host: "dns.google", Port: dot.DefaultPort, Addrs: []string{"8.8.8.8", "8.8.4.4"}},
		{Name: "quad9", Kind: DoT, Host: "dns.quad9.net", Port: dot.DefaultPort, Addrs: []string{"9.9.9.9", "149.112.112.112"}},
		{Name: "quad9-wire", Kind: DoHWire, URL: doh.Quad9, Addrs: []string{"9.9.9.9", "149.112.112.112"}},
		{Name: "quad9-json", Kind: DoHJSON, URL: dj.Quad9, Shape: dj.ShapeNameType, Addrs: []string{"9.9.9.9", "149.112.112.112"}},
	}
}

// Registry is a read-only set of resolver profiles. It is safe for
// concurrent use.
//
// Construct using [NewRegistry].
type Registry struct {
	profiles []Profile
	byName   map[string]int
}

// NewRegistry returns a registry holding the given profiles, or the
// [Catalog] when none are given. Later duplicates of a name are ignored.
func NewRegistry(profiles ...Profile) *Registry {
	if len(profiles) == 0 {
		profiles = Catalog()
	}

	r := &Registry{byName: make(map[string]int, len(profiles))}
	for _, p := range profiles {
		if _, dup := r.byName[p.Name]; dup {
			continue
		}
		r.byName[p.Name] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}
	return r
}

// Profiles returns a copy of the registered profiles, in order.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Lookup returns the profile registered under name.
func (r *Registry) Lookup(name string) (Profile, bool) {
	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, false
	}
	return r.profiles[i], true
}

// Resolve turns a selection into a profile. Well-known selections map to
// their catalog profile and ignore endpoint; custom selections build a
// profile from endpoint, which must not be empty.
func (r *Registry) Resolve(sel Selection, endpoint string) (Profile, error) {
	switch sel {
	case CustomHTTPS:
		return NewHTTPSProfile(DoHWire, endpoint)
	case CustomJSON:
		return NewHTTPSProfile(DoHJSON, endpoint)
	case CustomTLS:
		if strings.TrimSpace(endpoint) == "" {
			return Profile{}, &ValidationError{Field: "endpoint", Reason: "a host:port endpoint is required"}
		}
		return NewTLSProfile(endpoint)
	}

	p, ok := r.Lookup(sel.String())
	if !ok {
		return Profile{}, &ValidationError{Field: "resolver", Reason: fmt.Sprintf("resolver %s is not registered", sel)}
	}
	return p, nil
}

// ResolveName accepts either a selection name or any registered profile
// name, such as "quad9-json".
func (r *Registry) ResolveName(name, endpoint string) (Profile, error) {
	if sel, err := ParseSelection(name); err == nil {
		return r.Resolve(sel, endpoint)
	}
	if p, ok := r.Lookup(name); ok {
		return p, nil
	}
	return Profile{}, &ValidationError{Field: "resolver", Reason: fmt.Sprintf("unknown resolver %q", name)}
}
