package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitError carries a process exit code without printing anything more.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskagent",
		Short: "Remote script execution agent",
		Long: `taskagent accepts script execution requests over HTTP, runs each script as
an isolated local process, and reports a structured outcome.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a config file (yaml, json, toml or env)")

	serveCmd := newServeCommand()
	// Without a subcommand the agent serves.
	root.Args = cobra.NoArgs
	root.RunE = serveCmd.RunE

	root.AddCommand(serveCmd)
	root.AddCommand(newRunCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
