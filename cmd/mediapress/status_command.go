package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			st, err := client.status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			running := "stopped"
			if st.Running {
				running = "running"
			}
			fmt.Fprintf(out, "Daemon:   %s\n", running)
			fmt.Fprintf(out, "Database: %s\n", st.TaskDBPath)
			fmt.Fprintf(out, "Lock:     %s\n", st.LockPath)

			if len(st.Tasks) > 0 {
				rows := make([][]string, 0, len(st.Tasks))
				for _, status := range []string{"queued", "processing", "completed", "failed"} {
					if count, ok := st.Tasks[status]; ok {
						rows = append(rows, []string{status, strconv.Itoa(count)})
					}
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}
}
