// Command relayd runs the outbound relay: an HTTP API for message intake and
// link management, and queue workers that deliver messages to the remote
// platform.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-relay-bridge/internal/sysutil"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = ""
	Commit  = "none"
)

func version() string {
	var mod string
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "(devel)" {
		mod = bi.Main.Version
	}
	return sysutil.FirstNonEmpty(Version, mod, "dev")
}

// NewRootCommand builds the relayd command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relayd",
		Short:         "Relay local messages to a remote social platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newServeCommand(),
		newWorkCommand(),
		newRelayCommand(),
		newMigrateCommand(),
		newVersionCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relayd %s (%s)\n", version(), Commit)
		},
	}
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relayd:", err)
		os.Exit(1)
	}
}
