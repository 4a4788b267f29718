package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (job=%s warehouse=%s table=%s)\n",
			cfg.Job, cfg.Warehouse.Kind, cfg.Warehouse.Table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
