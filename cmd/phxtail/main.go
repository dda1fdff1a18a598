// Command phxtail joins Phoenix channel topics, logs every event it
// receives and optionally records them to PostgreSQL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/phx-stream/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "phxtail",
		Short: "Tail Phoenix channel topics",
		Long: `phxtail keeps a WebSocket connection to a Phoenix endpoint, joins the
configured topics and logs every event. Events can be recorded to
PostgreSQL and socket metrics exposed for Prometheus.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "phxtail", version.String())
		},
	}
}
