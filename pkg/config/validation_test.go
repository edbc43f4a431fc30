package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.SocketPath = "/tmp/coworker.sock"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_MissingSocketPath(t *testing.T) {
	cfg := validConfig()
	cfg.SocketPath = ""

	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"

	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidCodec(t *testing.T) {
	cfg := validConfig()
	cfg.Codec = "protobuf"

	assert.Error(t, Validate(cfg))
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.ShutdownTimeout = 0

	assert.Error(t, Validate(cfg))
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	assert.Error(t, Validate(cfg))
}

func TestValidate_TelemetrySampleRateOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5

	assert.Error(t, Validate(cfg))
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := validConfig()
		cfg.Logging.Level = level

		assert.NoError(t, Validate(cfg), "level %q should validate", level)
		assert.Equal(t, level, cfg.Logging.Level, "Validate must not mutate the level")
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}
