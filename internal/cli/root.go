// Package cli wires the relay's cobra commands.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/uflbot/uflbot/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"        __ _ _           _\n" +
		"  _   _ / _| | |__   ___ | |_\n" +
		" | | | | |_| | '_ \\ / _ \\| __|\n" +
		" | |_| |  _| | |_) | (_) | |_\n" +
		"  \\__,_|_| |_|_.__/ \\___/ \\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "uflbot",
	Short: "uflbot - chat relay for the UFL PM assistant",
	Long:  color.CyanString(logo) + "\nA chat relay that archives conversations and answers through a remote agent.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
}
