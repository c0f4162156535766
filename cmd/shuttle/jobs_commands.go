package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shuttle/internal/queue"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			jobs, err := api.List(cmd.Context(), statuses, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					string(job.Type),
					string(job.Status),
					formatPhase(job),
					fmt.Sprintf("%.0f%%", job.Progress),
					humanize.Time(job.CreatedAt),
				})
			}
			table := renderTable(
				[]string{"ID", "Type", "Status", "Phase", "Progress", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs to list")

	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := api.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %s\n", job.ID)
			fmt.Fprintf(out, "Type:      %s\n", job.Type)
			fmt.Fprintf(out, "Status:    %s\n", job.Status)
			if job.Phase != "" {
				fmt.Fprintf(out, "Phase:     %s\n", job.Phase)
			}
			fmt.Fprintf(out, "Progress:  %.0f%%\n", job.Progress)
			fmt.Fprintf(out, "Input:     %s\n", strings.Join(job.Input, ", "))
			if job.TargetLanguage != "" {
				fmt.Fprintf(out, "Language:  %s\n", job.TargetLanguage)
			}
			if job.Output != "" {
				fmt.Fprintf(out, "Output:    %s\n", job.Output)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
			}
			fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt.Local().Format(time.RFC1123))
			if job.CompletedAt != nil {
				fmt.Fprintf(out, "Finished:  %s\n", job.CompletedAt.Local().Format(time.RFC1123))
			}

			summary := job.Summary
			if summary.Downloaded+summary.Filtered+summary.Renamed+summary.Transferred+summary.Failed > 0 {
				fmt.Fprintf(out, "Summary:   %d downloaded, %d filtered, %d renamed, %d transferred, %d failed, %s total\n",
					summary.Downloaded, summary.Filtered, summary.Renamed,
					summary.Transferred, summary.Failed, humanize.Bytes(uint64(summary.TotalSize)))
			}
			return nil
		},
	}
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print a job's log, optionally following new entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}

			var since int64
			for {
				page, err := api.Logs(cmd.Context(), args[0], since, limit, follow)
				if err != nil {
					if follow && errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, entry := range page.Entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %-7s %s\n",
						entry.Timestamp.Local().Format("15:04:05"),
						strings.ToUpper(string(entry.Level)),
						entry.Message,
					)
				}
				if !follow {
					return nil
				}
				since = page.Next

				// Stop following once the job is terminal and drained.
				if len(page.Entries) == 0 {
					job, err := api.Get(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if job.Status.IsTerminal() {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Wait for and print new entries")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum entries per page")

	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := api.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch status {
			case queue.StatusCancelled:
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
			case queue.StatusRunning:
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested; job %s will stop at the next phase boundary\n", args[0])
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s already %s\n", args[0], status)
			}
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a finished job and its logs",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := api.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s removed\n", args[0])
			return nil
		},
	}
}

func formatPhase(job *queue.Job) string {
	if job.Phase == "" {
		return "-"
	}
	return string(job.Phase)
}
