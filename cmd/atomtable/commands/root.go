// Package commands implements the atomtable CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Sumatoshi-tech/atomtable/pkg/atom"
	"github.com/Sumatoshi-tech/atomtable/pkg/config"
	"github.com/Sumatoshi-tech/atomtable/pkg/observability"
	"github.com/Sumatoshi-tech/atomtable/pkg/version"
)

const (
	envOTLPHeaders = "OTEL_EXPORTER_OTLP_HEADERS"

	// meterName scopes instruments created by the commands themselves.
	meterName = "atomtable/commands"
)

// app carries state shared by every subcommand of one root command.
type app struct {
	configPath string
	verbose    bool
	quiet      bool

	// metricReaders are handed to the meter provider next to the OTLP reader.
	metricReaders []sdkmetric.Reader

	cfg       *config.Config
	logger    *slog.Logger
	providers observability.Providers
	metrics   *observability.CommandMetrics
}

// NewRootCommand creates the atomtable root command with all subcommands.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "atomtable",
		Short: "Concurrent string interning table",
		Long: `atomtable maps strings to small integer ids and back.

Commands:
  intern    Assign ids to input lines
  dump      Export the interned table as a table, JSON or YAML
  bench     Stress the table from many goroutines and verify convergence
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./atomtable.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(newInternCommand(a))
	rootCmd.AddCommand(newDumpCommand(a))
	rootCmd.AddCommand(newBenchCommand(a))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// setup loads configuration and initializes logging, tracing and metrics.
func (a *app) setup(cmd *cobra.Command, mode observability.AppMode) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelError
	}

	ocfg := observability.DefaultConfig()
	ocfg.ServiceVersion = version.Version
	ocfg.Mode = mode
	ocfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	ocfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv(envOTLPHeaders))
	ocfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	ocfg.SampleRatio = cfg.Telemetry.SampleRatio
	ocfg.TraceVerbose = cfg.Telemetry.TraceVerbose
	ocfg.LogLevel = level
	ocfg.LogJSON = cfg.Logging.Format == config.LogFormatJSON
	ocfg.MetricReaders = a.metricReaders

	providers, err := observability.InitWithWriter(ocfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewCommandMetrics(providers.Meter)
	if err != nil {
		return errors.Join(err, providers.Shutdown(context.Background()))
	}

	a.cfg = cfg
	a.logger = providers.Logger
	a.providers = providers
	a.metrics = metrics

	return nil
}

// wrap runs fn between setup and shutdown, recording the command's outcome.
func (a *app) wrap(
	mode observability.AppMode,
	fn func(cmd *cobra.Command, args []string) error,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if setupErr := a.setup(cmd, mode); setupErr != nil {
			return setupErr
		}

		ctx := cmd.Context()
		start := time.Now()

		defer func() {
			status := observability.StatusOK
			if err != nil {
				status = observability.StatusError
			}

			a.metrics.RecordCommand(ctx, cmd.Name(), status, time.Since(start))
			a.logger.DebugContext(ctx, "command finished",
				"command", cmd.Name(), "status", status, "duration", time.Since(start))

			if shutdownErr := a.providers.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
				a.logger.Warn("observability shutdown failed", "error", shutdownErr)
			}
		}()

		return fn(cmd, args)
	}
}

// newTable builds a table sized by config and wired to the process logger and
// tracer. Its gauges are reported under name until shutdown.
func (a *app) newTable(name string) *atom.Table {
	tbl := atom.New(
		atom.WithShards(a.cfg.Table.Shards),
		atom.WithCapacity(a.cfg.Table.Capacity),
		atom.WithLogger(a.logger),
		atom.WithTracer(observability.NewTableTracer(a.providers.Tracer)),
	)

	if a.providers.Tables != nil {
		a.providers.Tables.Track(name, tbl)
	}

	return tbl
}
