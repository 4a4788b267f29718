// Package cli wires configuration, logging, metrics and the warehouse into
// the tfletl commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tfletl/internal/config"
	"tfletl/internal/logging"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitInvalidConfig = 2
)

// errInvalidConfig is returned when validation finds at least one error.
var errInvalidConfig = errors.New("invalid configuration")

var rootFlags struct {
	config  string
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "tfletl",
	Short: "Load TfL ridership CSV data into a warehouse",
	Long: `tfletl cleans the TfL "journeys by type" CSV export, loads it into a
warehouse table and splits it into one table per reporting period.

Configuration is read from --config (YAML), then .env, then the environment.

Exit Codes:
  0  - Success (partition failures are logged, not fatal)
  1  - Run aborted (unreadable source, provisioning error, main table missing)
  2  - Invalid configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.config, "config", "", "pipeline config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "error:", err)
	}
	return err
}

// ExitCode maps an Execute error onto the process exit status. Aborted
// runs (pipeline.ErrMainTableMissing, *prepare.SourceReadError, backend
// errors) all exit with ExitFailure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errInvalidConfig):
		return ExitInvalidConfig
	default:
		return ExitFailure
	}
}

// setup loads and validates the configuration and builds the logger.
// Validation issues are logged; errors among them abort the command.
func setup(cmd *cobra.Command) (config.Pipeline, *slog.Logger, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return config.Pipeline{}, nil, err
	}
	if rootFlags.verbose {
		cfg.Log.Level = "debug"
	}
	log := logging.New(cfg.Log, cmd.ErrOrStderr())

	issues := config.ValidatePipeline(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			log.Error("config", "path", iss.Path, "msg", iss.Message)
		} else {
			log.Warn("config", "path", iss.Path, "msg", iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, nil, errInvalidConfig
	}
	return cfg, log, nil
}
