package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	host    string
	port    int
	debug   bool
	timeout int // seconds
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "cdpctl",
		Short:         "Drive a debugging-protocol engine from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.host, "host", "127.0.0.1", "engine discovery host")
	root.PersistentFlags().IntVar(&flags.port, "port", 9222, "engine discovery port")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().IntVar(&flags.timeout, "timeout", 30, "connection timeout in seconds")

	root.AddCommand(newConnectCmd(flags))
	root.AddCommand(newLaunchCmd(flags))
	return root
}
