package cli

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
)

// CommandRoot is the command executed by main.
var CommandRoot = NewCommandRoot()

// NewCommandRoot builds a fresh command tree. Tests use it to avoid
// flag values leaking between executions.
func NewCommandRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "dnsprobe",
		Short: `dnsprobe checks whether DNS resolvers answer over DoH and DoT`,
		Long: `dnsprobe checks whether DNS resolvers answer address queries over
DNS-over-HTTPS (RFC 8484 wire format or provider JSON) and DNS-over-TLS.

Each probe sends a single query with a bounded timeout and reports whether
the resolver is working.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCommandProbe(),
		newCommandResolvers(),
		newCommandResolvedConfig(),
	)

	return root
}

// newLogger writes text logs to the command's stderr, at debug level when
// verbose and warnings only otherwise.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// newHTTPClient returns a pooled client that makes exactly one attempt per
// request and logs through logger. Non-2xx responses are passed back as is.
func newHTTPClient(timeout time.Duration, logger *slog.Logger) *http.Client {
	base := cleanhttp.DefaultPooledClient()
	base.Timeout = timeout

	client := retryablehttp.NewClient()
	client.HTTPClient = base
	client.RetryMax = 0
	client.Logger = logger
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return client.StandardClient()
}
