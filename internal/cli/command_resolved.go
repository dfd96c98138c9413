package cli

import (
	"fmt"
	"time"

	"github.com/picatz/dnsprobe/pkg/probe"
	"github.com/picatz/dnsprobe/pkg/resolved"
	"github.com/spf13/cobra"
)

func newCommandResolvedConfig() *cobra.Command {
	var (
		endpoint string
		check    string
		timeout  time.Duration
		verbose  bool
		reset    bool
	)

	cmd := &cobra.Command{
		Use:   "resolved-config [resolver] [flags]",
		Short: "Print a systemd-resolved drop-in using a DNS-over-TLS resolver",
		Long: `Print a systemd-resolved drop-in that points the system at a
DNS-over-TLS resolver.

The file is only printed. Install it under ` + resolved.DropInDir + ` and
restart systemd-resolved to apply it. With --check the resolver is probed
first and nothing is printed unless it is working.

With --reset the steps removing the drop-in and restoring the default
resolvers are printed instead.`,
		Example: `  dnsprobe resolved-config quad9
  dnsprobe resolved-config custom-tls --endpoint 1.1.1.1:853 --check example.com
  dnsprobe resolved-config --reset`,
		Args: func(cmd *cobra.Command, args []string) error {
			if reset {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				_, err := fmt.Fprint(cmd.OutOrStdout(), resolved.Reset())
				return err
			}

			profile, err := probe.NewRegistry().ResolveName(args[0], endpoint)
			if err != nil {
				return fmt.Errorf("invalid resolver %q: %w", args[0], err)
			}

			conf, err := resolved.Render(profile)
			if err != nil {
				return err
			}

			if check != "" {
				logger := newLogger(cmd, verbose)

				prober := probe.NewProber(newHTTPClient(timeout, logger), logger)
				prober.Timeout = timeout

				out := prober.Probe(cmd.Context(), check, profile)
				switch {
				case out.Working():
				case out.Status == probe.Invalid:
					return out.Err
				case out.Err != nil:
					return fmt.Errorf("%s: %w", out, out.Err)
				default:
					return fmt.Errorf("%s", out)
				}
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), conf)
			return err
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "host:port for custom-tls")
	cmd.Flags().StringVar(&check, "check", "", "hostname to probe the resolver with before printing")
	cmd.Flags().DurationVar(&timeout, "timeout", probe.DefaultTimeout, "timeout for the --check probe")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log probe details to stderr")
	cmd.Flags().BoolVar(&reset, "reset", false, "print the steps that remove the drop-in instead")
	cmd.MarkFlagsMutuallyExclusive("reset", "check")
	cmd.MarkFlagsMutuallyExclusive("reset", "endpoint")

	return cmd
}
