package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tfletl/internal/orchestrator"
	"tfletl/internal/pipeline"
	"tfletl/internal/prepare"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load, split by reporting period and preview every table",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load and split by reporting period without previewing",
	Args:  cobra.NoArgs,
	RunE:  runLoad,
}

func init() {
	rootCmd.AddCommand(runCmd, loadCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer setupMetrics(cfg.Metrics, cfg.Job, log)()

	ctx := cmd.Context()
	gw, closeGW, err := openGateway(ctx, cfg, log)
	defer closeGW()
	if err != nil {
		return err
	}

	orch := orchestrator.New(cfg, prepare.New(cfg, log), gw, log)
	res, err := pipeline.NewDriver(cfg, orch, gw, log).Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printReport(cmd, res.Report)
	fmt.Fprintf(out, "state=%s previewed=%d missing=%d\n", res.State, len(res.Previewed), len(res.Missing))
	return nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer setupMetrics(cfg.Metrics, cfg.Job, log)()

	ctx := cmd.Context()
	gw, closeGW, err := openGateway(ctx, cfg, log)
	defer closeGW()
	if err != nil {
		return err
	}

	rep, err := orchestrator.New(cfg, prepare.New(cfg, log), gw, log).Run(ctx)
	if rep == nil {
		return err
	}
	if err != nil {
		log.Error("partition loads failed", "err", err)
	}
	printReport(cmd, rep)
	return nil
}

func printReport(cmd *cobra.Command, rep *orchestrator.Report) {
	out := cmd.OutOrStdout()
	status := "ok"
	if rep.MainLoadErr != nil {
		status = "failed"
	}
	fmt.Fprintf(out, "%s\trows=%d\t%s\n", rep.MainTable, rep.MainLoaded, status)
	for _, p := range rep.Partitions {
		status := "ok"
		switch {
		case p.Err != nil:
			status = "failed"
		case p.Skipped:
			status = "skipped"
		}
		fmt.Fprintf(out, "%s\trows=%d\t%s\n", p.Table, p.Rows, status)
	}
}
