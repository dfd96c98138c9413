package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/picatz/dnsprobe/pkg/dj"
	"github.com/picatz/dnsprobe/pkg/dnsmsg"
	"github.com/picatz/dnsprobe/pkg/dot"
	"github.com/picatz/dnsprobe/pkg/probe"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type probeOptions struct {
	resolvers  []string
	endpoint   string
	all        bool
	recordType string
	timeout    time.Duration
	framing    string
	jsonShape  string
	parallel   int
	qps        float64
	answers    bool
	verbose    bool
}

func newCommandProbe() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe hostname [flags]",
		Short: "Probe resolvers with an address query for hostname",
		Long: `Probe resolvers with an address query for hostname.

Each selected resolver is queried once over its transport and reported as
"<server>: working" when it answered, or "<server>: not working" otherwise.
With --answers (or --verbose) the returned records follow each line.
Well-known resolvers are cloudflare, google and quad9 (plus any name listed
by the resolvers command). Custom resolvers are selected with custom-https,
custom-json or custom-tls together with --endpoint.`,
		Example: `  dnsprobe probe example.com
  dnsprobe probe example.com -r google -r quad9 --answers
  dnsprobe probe example.com -r custom-tls --endpoint 9.9.9.9:853
  dnsprobe probe example.com --all --parallel 3 --qps 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.resolvers, "resolver", "r", []string{probe.Cloudflare.String()}, "resolvers to probe")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "endpoint for custom resolvers: a URL for custom-https and custom-json, host:port for custom-tls")
	cmd.Flags().BoolVar(&opts.all, "all", false, "probe every known resolver")
	cmd.Flags().StringVar(&opts.recordType, "type", dnsmsg.KindA.String(), "address record type to query for (A or AAAA)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", probe.DefaultTimeout, "timeout for each probe")
	cmd.Flags().StringVar(&opts.framing, "framing", dot.FramingLengthPrefixed.String(), "DNS-over-TLS framing (prefixed or raw)")
	cmd.Flags().StringVar(&opts.jsonShape, "json-shape", dj.ShapeNameType.String(), "JSON API query shape (name or dns)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 4, "number of probes running at once, 0 for no limit")
	cmd.Flags().Float64Var(&opts.qps, "qps", 0, "maximum probes started per second, 0 for no limit")
	cmd.Flags().BoolVar(&opts.answers, "answers", false, "print the answer records under each result")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "log probe details to stderr and print answer records")

	return cmd
}

func runProbe(cmd *cobra.Command, opts *probeOptions, hostname string) error {
	kind, err := dnsmsg.ParseRecordKind(opts.recordType)
	if err != nil {
		return fmt.Errorf("invalid type: %w", err)
	}

	framing, err := dot.ParseFraming(opts.framing)
	if err != nil {
		return fmt.Errorf("invalid framing: %w", err)
	}

	shape, err := dj.ParseShape(opts.jsonShape)
	if err != nil {
		return fmt.Errorf("invalid json shape: %w", err)
	}

	if opts.timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", opts.timeout)
	}

	profiles, err := selectProfiles(probe.NewRegistry(), opts)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("json-shape") {
		for i := range profiles {
			if profiles[i].Kind == probe.DoHJSON {
				profiles[i].Shape = shape
			}
		}
	}

	logger := newLogger(cmd, opts.verbose)

	prober := probe.NewProber(newHTTPClient(opts.timeout, logger), logger)
	prober.Kind = kind
	prober.Timeout = opts.timeout
	prober.DoT = dot.NewExchanger(nil, opts.timeout)
	prober.DoT.Framing = framing
	if opts.qps > 0 {
		prober.Limiter = rate.NewLimiter(rate.Limit(opts.qps), 1)
	}

	outcomes := prober.ProbeAll(cmd.Context(), hostname, profiles, opts.parallel)

	out := cmd.OutOrStdout()
	for _, o := range outcomes {
		if o.Status == probe.Invalid {
			return o.Err
		}

		logger.Info("probe result",
			"resolver", o.Profile.Name,
			"status", o.Status.String(),
			"records", o.Records,
			"duration", o.Duration,
			"err", o.Err,
		)

		fmt.Fprintln(out, o)
		if opts.answers || opts.verbose {
			for _, answer := range o.Answers {
				fmt.Fprintf(out, "  %s\n", answer)
			}
		}
	}

	return nil
}

// selectProfiles resolves the --resolver values, or the whole catalog
// with --all. Duplicates are probed once.
func selectProfiles(reg *probe.Registry, opts *probeOptions) ([]probe.Profile, error) {
	if opts.all {
		return reg.Profiles(), nil
	}

	if len(opts.resolvers) == 0 {
		return nil, errors.New("no resolvers selected")
	}

	var (
		profiles []probe.Profile
		seen     = map[string]bool{}
	)
	for _, name := range opts.resolvers {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		p, err := reg.ResolveName(name, opts.endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid resolver %q: %w", name, err)
		}
		profiles = append(profiles, p)
	}

	return profiles, nil
}
