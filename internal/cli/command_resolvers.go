package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/picatz/dnsprobe/pkg/probe"
	"github.com/spf13/cobra"
)

func newCommandResolvers() *cobra.Command {
	return &cobra.Command{
		Use:   "resolvers",
		Short: "List the known resolvers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintln(w, "NAME\tTRANSPORT\tENDPOINT\tADDRESSES")
			for _, p := range probe.NewRegistry().Profiles() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Kind, p.Endpoint(), strings.Join(p.Addrs, ","))
			}

			return w.Flush()
		},
	}
}
