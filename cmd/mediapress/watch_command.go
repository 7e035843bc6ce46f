package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediapress/internal/status"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Follow live progress until the task finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var failed bool
			err = client.watch(cmd.Context(), args[0], func(snapshot status.Snapshot) bool {
				if snapshot.NotFound {
					failed = true
					fmt.Fprintf(out, "task %s not found\n", args[0])
					return false
				}
				line := fmt.Sprintf("%-10s %4s", snapshot.Status, formatProgress(snapshot.Progress))
				if snapshot.Execution != nil {
					line += fmt.Sprintf("  [%s", snapshot.Execution.State)
					if snapshot.Execution.Meta.Stage != "" {
						line += " " + snapshot.Execution.Meta.Stage
					}
					if snapshot.Execution.Meta.Attempt > 0 {
						line += fmt.Sprintf(" attempt %d", snapshot.Execution.Meta.Attempt)
					}
					line += "]"
				}
				fmt.Fprintln(out, line)
				if snapshot.ErrorMessage != "" {
					failed = true
					fmt.Fprintf(out, "error: %s\n", snapshot.ErrorMessage)
				}
				return true
			})
			if err != nil {
				return err
			}
			if failed {
				return errors.New("task did not complete")
			}
			return nil
		},
	}
}
