package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warble-im/warble/internal/config"
	"github.com/warble-im/warble/puppet/remote"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the configured puppet over WebSocket",
		Long: "Serve starts the configured puppet and exposes it at /ws so remote\n" +
			"bot processes can drive it with the remote puppet client.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			pup, archive, err := buildPuppet(cfg)
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := remote.NewServer(pup, cfg.Server.Token, log)

			backendErr := make(chan error, 1)
			go func() {
				backendErr <- pup.Start(ctx)
			}()
			defer pup.Stop(context.Background())

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- srv.Start(ctx, cfg.Server.Addr)
			}()

			select {
			case err := <-backendErr:
				return err
			case err := <-serverErr:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "override listen address")
	return cmd
}
