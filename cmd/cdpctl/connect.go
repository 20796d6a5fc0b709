package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ByteAshen/cdpgo/browser"
	"github.com/ByteAshen/cdpgo/config"
	"github.com/ByteAshen/cdpgo/internal/xlog"
)

func newConnectCmd(flags *globalFlags) *cobra.Command {
	var navigateURL string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to an already-running engine and print its version",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := xlog.New(os.Stderr, flags.debug, "cdpctl")

			cfg, err := config.New(config.WithConnectionTimeout(time.Duration(flags.timeout) * time.Second))
			if err != nil {
				return fmt.Errorf("building config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
			defer cancel()

			b, err := browser.Connect(ctx, flags.host, flags.port, log, cfg)
			if err != nil {
				return fmt.Errorf("connecting to %s:%d: %w", flags.host, flags.port, err)
			}
			defer b.Close(context.Background())

			fmt.Printf("connected: %s (%s)\n", b.Version(), b.UserAgent())

			if navigateURL != "" {
				page, err := b.DefaultContext().NewPage(ctx, navigateURL)
				if err != nil {
					return fmt.Errorf("opening page: %w", err)
				}
				fmt.Printf("opened target %s\n", page.TargetID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&navigateURL, "open", "", "open a page at this URL after connecting")
	return cmd
}
