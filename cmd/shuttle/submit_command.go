package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shuttle/internal/client"
	"shuttle/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		language string
		target   string
		destPath string
		category string
	)

	cmd := &cobra.Command{
		Use:   "submit <type> <input>...",
		Short: "Submit a new job",
		Long: `Submit a new job to the daemon.

Types: download, organize, filter_audio, convert, composite.
Download and composite jobs take source URLs; the other types take
local file paths.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, ok := queue.ParseType(args[0])
			if !ok {
				return fmt.Errorf("unknown job type %q", args[0])
			}

			inputs := args[1:]
			if jobType != queue.TypeDownload && jobType != queue.TypeComposite {
				// Local paths travel to the daemon; they must be absolute.
				for i, input := range inputs {
					if strings.Contains(input, "://") {
						return fmt.Errorf("%s jobs take local paths, got URL %q", jobType, input)
					}
					absolute, err := filepath.Abs(input)
					if err != nil {
						return err
					}
					inputs[i] = absolute
				}
			}

			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := api.Submit(cmd.Context(), client.SubmitRequest{
				Type:           string(jobType),
				Input:          inputs,
				TargetLanguage: language,
				Destination: queue.Destination{
					Target:   target,
					Path:     destPath,
					Category: category,
				},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s job %s\n", job.Type, job.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Audio language to keep when filtering")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Storage target name (defaults to the configured default)")
	cmd.Flags().StringVar(&destPath, "path", "", "Explicit destination path, bypassing category folders")
	cmd.Flags().StringVar(&category, "category", "", "Category override (e.g. malayalam_movies)")

	return cmd
}
