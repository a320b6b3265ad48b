package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"montage/internal/daemon"
	"montage/internal/logging"
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the montage daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, closer, err := logging.NewToFile(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			}, cfg.Paths.LogDir, "montaged.log")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer closer.Close()

			d, err := daemon.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			d.Stop()
			return nil
		},
	}
}
