package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/procbridge/coworker/internal/examplehandlers"
	"github.com/procbridge/coworker/internal/logger"
	"github.com/procbridge/coworker/internal/registry"
	"github.com/procbridge/coworker/internal/telemetry"
	"github.com/procbridge/coworker/internal/worker"
	"github.com/procbridge/coworker/pkg/config"
)

var (
	flagSocketPath string
	flagLogLevel   string
	flagCodec      string
	flagDemo       bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coworker process",
	Long: `Start the coworker process: bind the configured Unix domain socket and
serve framed RPC requests against the registered handlers until the process
receives SIGINT or SIGTERM.

Examples:
  # Start against a socket path
  coworker start --socket-path /tmp/worker.sock

  # Start with the built-in demo handlers (echo, slow, operation)
  coworker start --socket-path /tmp/worker.sock --demo

  # Start with environment variable overrides
  PYPROC_SOCKET_PATH=/tmp/worker.sock coworker start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&flagSocketPath, "socket-path", "", "Unix domain socket path to bind (required)")
	startCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	startCmd.Flags().StringVar(&flagCodec, "codec", "", "wire codec: auto, json, json-fast, structured-json, msgpack")
	startCmd.Flags().BoolVar(&flagDemo, "demo", false, "register the built-in demo handlers (echo, slow, operation)")
}

func runStart(cmd *cobra.Command, args []string) error {
	v := config.New(GetConfigFile())

	if err := v.BindPFlag("socket_path", startCmd.Flags().Lookup("socket-path")); err != nil {
		return fmt.Errorf("failed to bind --socket-path: %w", err)
	}
	if err := v.BindPFlag("logging.level", startCmd.Flags().Lookup("log-level")); err != nil {
		return fmt.Errorf("failed to bind --log-level: %w", err)
	}
	if err := v.BindPFlag("codec", startCmd.Flags().Lookup("codec")); err != nil {
		return fmt.Errorf("failed to bind --codec: %w", err)
	}

	cfg, err := config.Finalize(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:         cfg.Telemetry.Enabled,
		ServiceName:     cfg.Telemetry.ServiceName,
		ServiceVersion:  Version,
		Endpoint:        cfg.Telemetry.Endpoint,
		Insecure:        cfg.Telemetry.Insecure,
		SampleRate:      cfg.Telemetry.SampleRate,
		ConsoleExporter: cfg.Telemetry.ConsoleExporter,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	reg := registry.New(logger.With("component", "registry"))
	if flagDemo {
		examplehandlers.Register(reg)
		logger.Info("demo handlers registered", "handlers", "echo, slow, operation")
	}

	w, err := worker.New(cfg, reg)
	if err != nil {
		return fmt.Errorf("failed to construct worker: %w", err)
	}

	logger.Info("coworker starting", logger.SocketPath(cfg.SocketPath), logger.Codec(cfg.Codec))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- w.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("worker shutdown error", logger.Err(err))
			return err
		}
		logger.Info("worker stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("worker error", logger.Err(err))
			return err
		}
		logger.Info("worker stopped")
	}

	return nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
