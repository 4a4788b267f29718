package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tfletl/internal/pipeline"
)

var previewCmd = &cobra.Command{
	Use:   "preview [table...]",
	Short: "Log the first rows of the main table and each partition table",
	Long: `preview reads back tables that a previous run produced. With no
arguments it previews the main table and the table of every configured
partition key; with no keys configured, of every key found in the main table.`,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	gw, closeGW, err := openGateway(ctx, cfg, log)
	defer closeGW()
	if err != nil {
		return err
	}

	tables := args
	if len(tables) == 0 {
		keys := cfg.Partition.Keys
		if len(keys) == 0 {
			keys, err = gw.PartitionKeys(ctx, cfg.Warehouse.Table, cfg.Partition.Column)
			if err != nil {
				return err
			}
		}
		tables = append(tables, cfg.Warehouse.Table)
		for _, k := range keys {
			tables = append(tables, cfg.PartitionTable(k))
		}
	}

	previewed, missing := pipeline.NewDriver(cfg, nil, gw, log).Preview(ctx, tables...)
	out := cmd.OutOrStdout()
	for _, t := range previewed {
		fmt.Fprintf(out, "%s\tok\n", t)
	}
	for _, t := range missing {
		fmt.Fprintf(out, "%s\tmissing\n", t)
	}
	return nil
}
