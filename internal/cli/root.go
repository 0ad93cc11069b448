// Package cli implements capacityctl, the operator tool for issuing API keys
// and previewing schedules from a dataset file.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
)

func Execute() error {
	return NewRoot().Execute()
}

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "capacityctl",
		Short:        "Capacity scheduler operator tool",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadEnv()
		},
	}
	root.AddCommand(
		KeygenCmd(),
		WorkdaysCmd(),
		PlanCmd(),
	)
	return root
}
