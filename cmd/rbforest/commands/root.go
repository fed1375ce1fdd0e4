// Package commands implements the rbforest CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbforest/pkg/config"
	"github.com/Sumatoshi-tech/rbforest/pkg/observability"
	"github.com/Sumatoshi-tech/rbforest/pkg/version"
)

const (
	flagConfig      = "config"
	flagLogLevel    = "log-level"
	flagLogJSON     = "log-json"
	flagMetricsAddr = "metrics-addr"
)

// observabilityInit matches observability.Init so tests can swap it out.
type observabilityInit func(observability.Config) (observability.Providers, error)

// session is the state one command invocation runs with.
type session struct {
	cfg       *config.Config
	providers observability.Providers
	metrics   *observability.Metrics
}

// app holds the global flags shared by every subcommand.
type app struct {
	initObservability observabilityInit

	configPath  string
	logLevel    string
	metricsAddr string
	logJSON     bool
}

// NewRootCommand creates the rbforest root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(observability.Init)
}

func newRootCommand(initObs observabilityInit) *cobra.Command {
	cli := &app{initObservability: initObs}

	rootCmd := &cobra.Command{
		Use:   "rbforest",
		Short: "Concurrent arena-backed red-black forests",
		Long: `rbforest exercises forests of red-black trees that share arenas.

Commands:
  stress     Run a randomized concurrent workload and validate every tree
  hibernate  Compress a populated forest, boot it again and validate it
  version    Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cli.configPath, flagConfig, "", "config file (default ./rbforest.yaml, ./config/rbforest.yaml or /etc/rbforest/rbforest.yaml)")
	flags.StringVar(&cli.logLevel, flagLogLevel, "", "minimum log level: debug, info, warn or error")
	flags.BoolVar(&cli.logJSON, flagLogJSON, false, "emit JSON logs")
	flags.StringVar(&cli.metricsAddr, flagMetricsAddr, "", "serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(newStressCommand(cli))
	rootCmd.AddCommand(newHibernateCommand(cli))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// run loads the configuration, applies the flag overrides, brings up telemetry and
// executes body inside a span named after the command.
func (cli *app) run(
	cmd *cobra.Command,
	mode observability.AppMode,
	override func(*config.Config),
	body func(ctx context.Context, sess *session) error,
) (err error) {
	cfg, err := config.LoadConfig(cli.configPath)
	if err != nil {
		return err
	}

	cli.applyGlobalFlags(cmd, cfg)

	if override != nil {
		override(cfg)
	}

	err = config.Validate(cfg)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	providers, err := cli.initObservability(observabilityConfig(cfg, mode))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	metrics, err := observability.NewMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	if cfg.Telemetry.MetricsAddr != "" {
		server, serveErr := observability.StartMetricsServer(cfg.Telemetry.MetricsAddr, providers)
		if serveErr != nil {
			return serveErr
		}

		defer func() {
			err = errors.Join(err, server.Shutdown(context.Background()))
		}()
	}

	ctx, span := providers.Tracer.Start(cmd.Context(), "rbforest."+cmd.Name())
	defer span.End()

	return body(ctx, &session{cfg: cfg, providers: providers, metrics: metrics})
}

func (cli *app) applyGlobalFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed(flagLogLevel) {
		cfg.Logging.Level = cli.logLevel
	}

	if flags.Changed(flagLogJSON) {
		cfg.Logging.JSON = cli.logJSON
	}

	if flags.Changed(flagMetricsAddr) {
		cfg.Telemetry.MetricsAddr = cli.metricsAddr
	}
}

func observabilityConfig(cfg *config.Config, mode observability.AppMode) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Get().Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = cfg.Telemetry.OTLPHeaders
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.Prometheus = cfg.Telemetry.MetricsAddr != ""
	obsCfg.DebugTrace = cfg.Telemetry.DebugTrace
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.TraceAttributes = cfg.Telemetry.TraceAttributes
	obsCfg.LogLevel = cfg.Logging.SlogLevel()
	obsCfg.LogJSON = cfg.Logging.JSON

	if len(obsCfg.OTLPHeaders) == 0 {
		obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	}

	return obsCfg
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
