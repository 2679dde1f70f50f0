// Package cmd implements the relay command line.
package cmd

import (
	"github.com/grovetools/relay/cli"
	"github.com/grovetools/relay/version"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the relay command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("relay", "Run AI coding agents as long-lived sessions")
	root.Long = `relay keeps conversations with agent CLIs (gemini, codex, claude) alive
across turns. Sessions live in a daemon started with 'relay serve start'; the
other commands talk to it over a unix socket.`
	cli.SetVersionTemplate(root, version.GetInfo())

	root.AddCommand(
		NewServeCmd(),
		NewStartCmd(),
		NewSendCmd(),
		NewStopCmd(),
		NewRmCmd(),
		NewLsCmd(),
		NewPsCmd(),
		NewWorktreeCmd(),
		NewHandoverCmd(),
		NewLogsCmd(),
		NewAttachCmd(),
		NewRunCmd(),
		NewConfigCmd(),
		cli.NewVersionCommand(version.GetInfo()),
	)
	cli.ApplyStyledHelpRecursive(root)
	return root
}
