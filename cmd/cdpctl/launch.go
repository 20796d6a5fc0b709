package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ByteAshen/cdpgo/launcher"
)

func newLaunchCmd(flags *globalFlags) *cobra.Command {
	var headless bool
	var execPath string

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start a local engine process and print its debugger url",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(flags.timeout)*time.Second)
			defer cancel()

			opts := launcher.Options{
				ExecPath: execPath,
				Flags:    map[string]interface{}{"headless": headless},
				Timeout:  time.Duration(flags.timeout) * time.Second,
			}
			proc, err := launcher.Launch(ctx, opts)
			if err != nil {
				return fmt.Errorf("launching engine: %w", err)
			}
			defer proc.Close()

			fmt.Println(proc.DebuggerURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", true, "launch in headless mode")
	cmd.Flags().StringVar(&execPath, "exec-path", "", "override the engine binary path")
	return cmd
}
