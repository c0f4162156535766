package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := api.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:   %v\n", status.Running)
			fmt.Fprintf(out, "Workers:   %d\n", status.Workers)
			fmt.Fprintf(out, "Queue DB:  %s\n", status.QueueDB)

			if len(status.Jobs) > 0 {
				statuses := make([]string, 0, len(status.Jobs))
				for key := range status.Jobs {
					statuses = append(statuses, key)
				}
				sort.Strings(statuses)
				rows := make([][]string, 0, len(statuses))
				for _, key := range statuses {
					rows = append(rows, []string{key, fmt.Sprintf("%d", status.Jobs[key])})
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(out, table)
			}

			for _, check := range status.Checks {
				marker := "ok"
				if !check.Passed {
					marker = "FAIL"
				}
				fmt.Fprintf(out, "[%s] %s: %s\n", marker, check.Name, check.Detail)
			}
			return nil
		},
	}
}
