package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the current state of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			task, err := client.getTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task:     %s\n", task.TaskID)
			fmt.Fprintf(out, "User:     %s\n", task.UserID)
			fmt.Fprintf(out, "File:     %s\n", task.OriginalFilename)
			fmt.Fprintf(out, "Status:   %s\n", task.Status)
			fmt.Fprintf(out, "Progress: %d%%\n", task.Progress)
			if task.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:    %s\n", task.ErrorMessage)
			}
			if task.Outputs != nil {
				fmt.Fprintf(out, "Thumbnail: %s\n", task.Outputs.Thumbnail)
				rows := make([][]string, 0, len(task.Outputs.Variants))
				for _, variant := range task.Outputs.Variants {
					rows = append(rows, []string{variant.Label, variant.URL})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Variant", "URL"}, rows,
					[]columnAlignment{alignLeft, alignLeft}))
			}
			return nil
		},
	}
}

func formatProgress(progress int) string {
	return strconv.Itoa(progress) + "%"
}
