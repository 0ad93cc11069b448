package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arnavshah/capacity-scheduler-api/pkg/auth"
)

func KeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <name>",
		Short: "Sign an API key with API_MASTER_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateHMACKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated Key for %s:\n%s\n", args[0], key)
			return nil
		},
	}
}
