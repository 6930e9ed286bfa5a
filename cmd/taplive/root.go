package main

import (
	"fmt"

	"taplive/internal/buildinfo"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root taplive command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "taplive",
		Short:         "Live terminal reporter for TAP test programs",
		Long:          "taplive runs TAP-producing test programs concurrently and shows running\ntests, failures and a closing summary as results arrive.",
		Version:       buildinfo.Long(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newRunCmd(),
		newReplayCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	return cmd
}

// newVersionCmd creates the "taplive version" subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taplive version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Long())
		},
	}
}
