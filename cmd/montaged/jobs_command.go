package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"montage/internal/config"
	"montage/internal/jobs"
)

var titleCaser = cases.Title(language.English)

func newJobsCommand(cmdCtx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and submit jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, cmdCtx, 20)
		},
	}

	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, cmdCtx, listLimit)
		},
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of jobs to list")

	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsShow(cmd, cmdCtx, args[0])
		},
	}

	submitCmd := &cobra.Command{
		Use:   "submit <request.json>",
		Short: "Submit a job request to the running daemon",
		Long:  "Reads a JSON job request from the given file (or stdin when the argument is -) and posts it to the daemon API.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsSubmit(cmd, cmdCtx, args[0])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job status record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	jobsCmd.AddCommand(listCmd)
	jobsCmd.AddCommand(showCmd)
	jobsCmd.AddCommand(submitCmd)
	jobsCmd.AddCommand(deleteCmd)
	return jobsCmd
}

func openStore(cfg *config.Config) (*jobs.Store, error) {
	store, err := jobs.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return store, nil
}

func runJobsList(cmd *cobra.Command, cmdCtx *commandContext, limit int) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No jobs")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.ID,
			string(record.Kind),
			titleCaser.String(string(record.Status)),
			fmt.Sprintf("%.0f%%", record.Progress),
			record.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(out, renderJobTable(rows))
	return nil
}

func runJobsShow(cmd *cobra.Command, cmdCtx *commandContext, id string) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	record, found, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("job %s not found", id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", record.ID)
	fmt.Fprintf(out, "Kind:      %s\n", record.Kind)
	fmt.Fprintf(out, "Status:    %s\n", titleCaser.String(string(record.Status)))
	fmt.Fprintf(out, "Progress:  %.0f%%\n", record.Progress)
	fmt.Fprintf(out, "Created:   %s\n", record.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if record.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", record.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if record.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", record.ErrorMessage)
	}
	if record.ResultLocator != "" {
		fmt.Fprintf(out, "Result:    %s\n", record.ResultLocator)
	}
	if record.ThumbnailLocator != "" {
		fmt.Fprintf(out, "Thumbnail: %s\n", record.ThumbnailLocator)
	}
	if record.ExternalJobID != "" {
		fmt.Fprintf(out, "External:  %s\n", record.ExternalJobID)
	}
	return nil
}

func runJobsSubmit(cmd *cobra.Command, cmdCtx *commandContext, source string) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}

	var body []byte
	if source == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(source)
	}
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("empty request body")
	}

	accepted, err := submitJob(cmd.Context(), cfg, body)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job accepted: %s\n", accepted.JobID)
	return nil
}
