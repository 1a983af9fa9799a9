// Package cli implements the mhub-broker command-line interface: run the
// broker, interactively generate a config file, print version info, or
// attach a live stats dashboard.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd builds the root cobra command for mhub-broker. With no
// subcommand it behaves as "run", matching the bare-invocation convenience
// of most single-binary brokers.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "mhub-broker",
		Short: "mhub broker — pub/sub message hub",
		Long:  "mhub-broker routes messages between nodes over WebSocket and TCP, with glob-pattern bindings, sliding-window delivery, and session persistence.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newStatsCmd())

	return root
}

// resolveConfigPath returns the config file path from (in priority order):
// a positional argument, the --config/-c flag, or a default value.
func resolveConfigPath(cmd *cobra.Command, args []string, defaultPath string) string {
	if len(args) > 0 {
		return args[0]
	}
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	return defaultPath
}
