package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"montage/internal/deps"
	"montage/internal/jobs"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and job store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if daemonHealthy(cmd.Context(), cfg) {
				fmt.Fprintf(out, "Daemon:   running (api %s)\n", cfg.Paths.APIBind)
			} else {
				fmt.Fprintln(out, "Daemon:   not reachable")
			}
			fmt.Fprintf(out, "Store:    %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Queue:    %s\n", cfg.Queue.Driver)

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			for _, status := range []jobs.Status{jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusFailed} {
				fmt.Fprintf(out, "%-10s%d\n", titleCaser.String(string(status))+":", counts[status])
			}

			for _, tool := range deps.CheckBinaries(deps.Required(cfg)) {
				detail := "available"
				if !tool.Available {
					detail = tool.Detail
				}
				fmt.Fprintf(out, "%-10s%s\n", tool.Name+":", detail)
			}
			return nil
		},
	}
}
