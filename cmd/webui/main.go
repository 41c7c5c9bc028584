package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jphp-group-community/wizard-framework/internal/config"
	"github.com/jphp-group-community/wizard-framework/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rep := &reporter{}
	if err := rootCmd(rep).Execute(); err != nil {
		rep.report(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(rep *reporter) *cobra.Command {
	root := &cobra.Command{
		Use:   "webui",
		Short: "Serve server-driven UI components over WebSocket",
		Long: `webui serves UI components whose state lives on the server.

Each component is mounted under its own path: an HTTP view renders the
bootstrap page and a WebSocket endpoint carries the session messages.

Signals:
  SIGHUP           ask every connected page to reload
  SIGINT, SIGTERM  close every session and stop the server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(rep),
		errorsCmd(),
		versionCmd(),
	)
	return root
}

// reporter prints the error a command failed with. Once a config is loaded
// its log format decides between the terminal and the JSON rendering.
type reporter struct {
	json bool
}

func (r *reporter) configure(cfg *config.Config) {
	r.json = cfg.Log.Format == "json"
}

func (r *reporter) report(w io.Writer, err error) {
	if r.json {
		fmt.Fprintln(w, errors.FromError(err, errors.CodeCommand).FormatJSON())
		return
	}
	errors.SetColor(isTerminal(w))
	errors.Fprint(w, errors.FromError(err, errors.CodeCommand))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
