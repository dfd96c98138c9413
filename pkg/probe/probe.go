// Package probe checks whether a DNS resolver answers an address query
// over DNS-over-HTTPS (wire or JSON) or DNS-over-TLS.
//
// A [Registry] maps user selections to resolver [Profile] values, each
// bound to exactly one transport. A [Prober] runs one probe per call:
// it validates the inputs, performs a single exchange with a bounded
// timeout, and reduces the result to an [Outcome]. Failures of any kind
// are reported inside the Outcome; a broken resolver is an expected result.
//
// For example, to check Cloudflare over RFC 8484:
//
//	reg := probe.NewRegistry()
//	profile, _ := reg.Resolve(probe.Cloudflare, "")
//	out := probe.NewProber(nil, nil).Probe(ctx, "example.com", profile)
//	fmt.Println(out) // cloudflare-dns.com: working
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/miekg/dns"
	"github.com/picatz/dnsprobe/pkg/dj"
	"github.com/picatz/dnsprobe/pkg/dnsmsg"
	"github.com/picatz/dnsprobe/pkg/doh"
	"github.com/picatz/dnsprobe/pkg/dot"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every probe unless [Prober.Timeout] says otherwise.
const DefaultTimeout = 5 * time.Second

// phase is a step of a single probe. Phases only move forward.
type phase int

const (
	phaseValidating phase = iota
	phaseResolving
	phaseClassifying
	phaseDone
)

func (p phase) String() string {
	return [...]string{"validating", "resolving", "classifying", "done"}[p]
}

// Prober runs probes. Its fields are read-only once probing starts, so a
// single Prober can serve concurrent probes.
//
// Construct using [NewProber].
type Prober struct {
	// HTTPClient is used by both DoH transports.
	HTTPClient *http.Client

	// DoT is the DNS-over-TLS exchanger.
	DoT *dot.Exchanger

	// Kind is the record type to ask for.
	Kind dnsmsg.RecordKind

	// Timeout bounds each probe.
	Timeout time.Duration

	// Limiter, when set, paces the probes started by [Prober.ProbeAll].
	Limiter *rate.Limiter

	// Logger receives debug traces of each probe.
	Logger *slog.Logger
}

// NewProber creates a [*Prober] asking for A records with [DefaultTimeout].
// A nil httpClient is replaced by a clean client and a nil logger by one
// that discards everything.
func NewProber(httpClient *http.Client, logger *slog.Logger) *Prober {
	if httpClient == nil {
		httpClient = cleanhttp.DefaultClient()
		httpClient.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{
		HTTPClient: httpClient,
		DoT:        dot.NewExchanger(nil, DefaultTimeout),
		Kind:       dnsmsg.KindA,
		Timeout:    DefaultTimeout,
		Logger:     logger,
	}
}

// Probe asks the resolver described by profile for the addresses of
// hostname and classifies what happened.
func (p *Prober) Probe(ctx context.Context, hostname string, profile Profile) Outcome {
	log := p.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("resolver", profile.Name, "transport", profile.Kind.String(), "hostname", hostname)

	out := Outcome{Profile: profile}
	done := func(out Outcome) Outcome {
		log.Debug("probe finished", "phase", phaseDone, "status", out.Status, "records", out.Records, "duration", out.Duration, "err", out.Err)
		return out
	}

	log.Debug("probe started", "phase", phaseValidating)
	query, err := p.validate(hostname, profile)
	if err != nil {
		out.Status = Invalid
		out.Err = err
		return done(out)
	}

	log.Debug("probe running", "phase", phaseResolving, "endpoint", profile.Endpoint())
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := p.resolve(ctx, query, profile)
	out.Duration = time.Since(start)

	log.Debug("probe classifying", "phase", phaseClassifying)
	if err != nil {
		out.Status = TransportFailed
		out.Err = &TransportError{Kind: profile.Kind, Endpoint: profile.Endpoint(), Err: err}
		return done(out)
	}
	return done(classify(out, res, p.dotFraming()))
}

// ProbeAll probes every profile for hostname, running at most limit
// probes at a time (no limit when limit <= 0). Outcomes are returned in
// the order of profiles.
func (p *Prober) ProbeAll(ctx context.Context, hostname string, profiles []Profile, limit int) []Outcome {
	outcomes := make([]Outcome, len(profiles))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, profile := range profiles {
		i, profile := i, profile
		g.Go(func() error {
			if p.Limiter != nil {
				if err := p.Limiter.Wait(ctx); err != nil {
					outcomes[i] = Outcome{
						Status:  TransportFailed,
						Err:     &TransportError{Kind: profile.Kind, Endpoint: profile.Endpoint(), Err: err},
						Profile: profile,
					}
					return nil
				}
			}
			outcomes[i] = p.Probe(ctx, hostname, profile)
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

// wireQuery is a validated query, ready for any transport.
type wireQuery struct {
	name    string
	kind    dnsmsg.RecordKind
	encoded []byte
}

// validate checks the inputs and encodes the query without doing any I/O.
func (p *Prober) validate(hostname string, profile Profile) (*wireQuery, error) {
	if strings.TrimSpace(hostname) == "" {
		return nil, &ValidationError{Field: "hostname", Reason: "hostname is required"}
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	kind := p.Kind
	if kind == 0 {
		kind = dnsmsg.KindA
	}

	name, err := dnsmsg.Normalize(hostname)
	if err != nil {
		return nil, &dnsmsg.EncodingError{Name: hostname, Err: err}
	}

	q := dnsmsg.NewQuery(name, kind)
	if profile.Kind == DoT {
		// DoH uses ID 0 per RFC 8484; stream transports use a random one.
		q = q.WithID(dns.Id())
	}

	encoded, err := dnsmsg.Encode(q)
	if err != nil {
		return nil, err
	}

	return &wireQuery{name: name, kind: kind, encoded: encoded}, nil
}

// result is what a transport brought back: a DNS message (possibly
// partial, for raw DoT) or a JSON answer.
type result struct {
	wire []byte
	json *dj.Response
}

// resolve performs the single exchange matching the profile's transport.
func (p *Prober) resolve(ctx context.Context, q *wireQuery, profile Profile) (*result, error) {
	switch profile.Kind {
	case DoHWire:
		b, err := doh.Exchange(ctx, p.httpClient(), profile.URL, q.encoded)
		if err != nil {
			return nil, err
		}
		return &result{wire: b}, nil

	case DoHJSON:
		resp, err := dj.Query(ctx, p.httpClient(), profile.URL, &dj.Request{
			Name:  q.name,
			Type:  q.kind.String(),
			Shape: profile.Shape,
		})
		if err != nil {
			return nil, err
		}
		return &result{json: resp}, nil

	case DoT:
		b, err := p.dotExchanger().Exchange(ctx, profile.Endpoint(), q.encoded)
		if err != nil {
			return nil, err
		}
		return &result{wire: b}, nil
	}

	// Validate rejects unknown kinds before we get here.
	panic(fmt.Sprintf("probe: unhandled transport %s", profile.Kind))
}

// classify maps a transport result to an outcome. A JSON reply without
// answers, including one with no Answer key at all, is NotAnswered with a
// nil Err rather than a TransportError.
func classify(out Outcome, res *result, framing dot.Framing) Outcome {
	switch {
	case res.json != nil:
		if res.json.Answered() {
			out.Status = Answered
			out.Records = len(res.json.Answer)
			for _, rr := range res.json.Answer {
				out.Answers = append(out.Answers, rr.Data)
			}
		} else {
			out.Status = NotAnswered
		}
		return out

	case out.Profile.Kind == DoT && framing == dot.FramingRaw:
		// Any bytes back count as a reply; their content is not a
		// complete message, so the record count stays unknown.
		if len(res.wire) > 0 {
			out.Status = Answered
		} else {
			out.Status = TransportFailed
			out.Err = &TransportError{Kind: DoT, Endpoint: out.Profile.Endpoint(), Err: dot.ErrEmptyResponse}
		}
		return out
	}

	resp, err := dnsmsg.Decode(res.wire)
	if err != nil {
		out.Status = TransportFailed
		out.Err = err
		return out
	}

	if resp.Answered() {
		out.Status = Answered
		out.Records = int(resp.ANCount)
		out.Answers = resp.Answers
	} else {
		out.Status = NotAnswered
	}
	return out
}

func (p *Prober) httpClient() *http.Client {
	if p.HTTPClient == nil {
		return http.DefaultClient
	}
	return p.HTTPClient
}

func (p *Prober) dotExchanger() *dot.Exchanger {
	if p.DoT == nil {
		return dot.NewExchanger(nil, p.Timeout)
	}
	return p.DoT
}

func (p *Prober) dotFraming() dot.Framing {
	if p.DoT == nil {
		return dot.FramingLengthPrefixed
	}
	return p.DoT.Framing
}
