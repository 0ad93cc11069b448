package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
)

func WorkdaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workdays <start> <end>",
		Short: "Count Monday-Friday days in an inclusive date range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := calendar.ParseRange(args[0], args[1]); !ok {
				return fmt.Errorf("invalid range %s..%s", args[0], args[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), calendar.WorkdaysBetween(args[0], args[1]))
			return nil
		},
	}
}
