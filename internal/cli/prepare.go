package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tfletl/internal/prepare"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Clean the source file and print a summary; nothing is loaded",
	Args:  cobra.NoArgs,
	RunE:  runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer setupMetrics(cfg.Metrics, cfg.Job, log)()

	ds, err := prepare.New(cfg, log).Prepare(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	st := ds.Stats
	fmt.Fprintf(out, "source=%s read=%d duplicates=%d rows=%d renamed=%d dropped=%d\n",
		cfg.Source.Path, st.RowsRead, st.Duplicates, ds.Len(), st.ColumnsRenamed, st.ColumnsDropped)
	fmt.Fprintf(out, "columns=%s\n", strings.Join(ds.Columns, ","))
	for _, k := range ds.Keys(cfg.Partition.Column) {
		fmt.Fprintf(out, "%s=%d rows=%d table=%s\n",
			cfg.Partition.Column, k, len(ds.Partition(cfg.Partition.Column, k)), cfg.PartitionTable(k))
	}
	return nil
}
