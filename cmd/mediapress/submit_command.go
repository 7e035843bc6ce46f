package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a media file for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.submit(cmd.Context(), userID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s (handle %s)\n",
				result.TaskID, result.Status, result.JobHandle)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Submitting user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
