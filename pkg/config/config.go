package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/procbridge/coworker/internal/bytesize"
)

// ErrMissingSocketPath is returned when a worker is asked to start without a
// socket path supplied by flag, environment variable, or config file.
var ErrMissingSocketPath = errors.New("socket path not configured")

// Config holds the static configuration for a coworker worker process.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest priority)
//  2. Environment variables (exact names per field, see BindEnv calls in New)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// SocketPath is the filesystem path of the Unix domain socket the worker
	// binds to. Required; has no default.
	// Env: PYPROC_SOCKET_PATH
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path" validate:"required"`

	// Codec selects the wire codec used to encode/decode frame payloads.
	// One of: auto, json, json-fast, structured-json, msgpack.
	// Env: PYPROC_CODEC_TYPE
	Codec string `mapstructure:"codec" yaml:"codec" validate:"omitempty,oneof=auto json json-fast structured-json msgpack"`

	// MaxFrameSize caps the size of a single frame payload. Zero means unlimited.
	// Accepts human-readable sizes like "4MiB".
	// Env: COWORKER_MAX_FRAME_SIZE
	MaxFrameSize bytesize.ByteSize `mapstructure:"max_frame_size" yaml:"max_frame_size,omitempty"`

	// SideChannelCancellation controls whether the connection runs a secondary
	// reader goroutine that can deliver cancellation frames while a handler is
	// still executing. Disabling it falls back to cancellation only between
	// requests. Defaults to true.
	// Env: COWORKER_SIDE_CHANNEL_CANCEL
	SideChannelCancellation *bool `mapstructure:"side_channel_cancellation" yaml:"side_channel_cancellation,omitempty"`

	// ShutdownTimeout bounds how long graceful shutdown waits for the active
	// connection to finish its current request.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" validate:"required" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output encoding: text or json.
	// Env: COWORKER_LOG_FORMAT
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// Disabled by default; when enabled, spans are exported via OTLP/gRPC.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Env: PYPROC_TRACING_ENABLED
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName is the service.name resource attribute reported on spans.
	// Env: PYPROC_SERVICE_NAME
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// ServiceVersion is the service.version resource attribute.
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`

	// Endpoint is the OTLP collector endpoint (host:port). Required when Enabled.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether the OTLP connection skips TLS.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling ratio, 0.0 to 1.0.
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// ConsoleExporter additionally registers a stdout span exporter, for
	// local development.
	// Env: PYPROC_TRACE_CONSOLE
	ConsoleExporter bool `mapstructure:"console_exporter" yaml:"console_exporter"`
}

// SideChannelCancellationEnabled reports whether the secondary cancellation
// reader is active, defaulting to true when unset.
func (c *Config) SideChannelCancellationEnabled() bool {
	return c.SideChannelCancellation == nil || *c.SideChannelCancellation
}

// New builds a viper instance configured with coworker's environment variable
// bindings and config file search path, but does not yet read or unmarshal
// anything. Callers may bind CLI flags (highest precedence) before calling
// Finalize.
//
// Environment variables are bound explicitly per field rather than through a
// blanket prefix, because the worker's env vars don't share one prefix:
// PYPROC_* names are mandated by the wire protocol contract, COWORKER_* names
// are this implementation's own additions.
func New(configPath string) *viper.Viper {
	v := viper.New()

	_ = v.BindEnv("socket_path", "PYPROC_SOCKET_PATH")
	_ = v.BindEnv("codec", "PYPROC_CODEC_TYPE")
	_ = v.BindEnv("max_frame_size", "COWORKER_MAX_FRAME_SIZE")
	_ = v.BindEnv("side_channel_cancellation", "COWORKER_SIDE_CHANNEL_CANCEL")
	_ = v.BindEnv("logging.format", "COWORKER_LOG_FORMAT")
	_ = v.BindEnv("telemetry.enabled", "PYPROC_TRACING_ENABLED")
	_ = v.BindEnv("telemetry.service_name", "PYPROC_SERVICE_NAME")
	_ = v.BindEnv("telemetry.console_exporter", "PYPROC_TRACE_CONSOLE")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	return v
}

// Finalize reads the config file (if any), unmarshals it into a Config,
// applies defaults, and validates the result.
func Finalize(v *viper.Viper) (*Config, error) {
	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	} else {
		// No config file: pull whatever viper resolved from flags/env directly.
		cfg.SocketPath = v.GetString("socket_path")
		cfg.Codec = v.GetString("codec")
		if s := v.GetString("max_frame_size"); s != "" {
			size, err := bytesize.ParseByteSize(s)
			if err != nil {
				return nil, fmt.Errorf("invalid max_frame_size: %w", err)
			}
			cfg.MaxFrameSize = size
		}
		if v.IsSet("side_channel_cancellation") {
			enabled := v.GetBool("side_channel_cancellation")
			cfg.SideChannelCancellation = &enabled
		}
		cfg.Logging.Level = v.GetString("logging.level")
		cfg.Logging.Format = v.GetString("logging.format")
		cfg.Telemetry.Enabled = v.GetBool("telemetry.enabled")
		cfg.Telemetry.ServiceName = v.GetString("telemetry.service_name")
		cfg.Telemetry.ConsoleExporter = v.GetBool("telemetry.console_exporter")
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Load is a convenience wrapper around New+Finalize for callers that have no
// CLI flags to bind (tests, library embedders).
func Load(configPath string) (*Config, error) {
	return Finalize(New(configPath))
}

// SaveConfig writes cfg to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// readConfigFile reads the configuration file if present.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the combined decode hook for ByteSize and
// time.Duration fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// enabling config values like "4MiB" or "100MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings and numbers to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// Validate checks a Config for internal consistency using struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return nil
}

// getConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "coworker")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "coworker")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
