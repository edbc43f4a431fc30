package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
socket_path: "/tmp/coworker.sock"
logging:
  level: "INFO"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "auto", cfg.Codec)
	assert.True(t, cfg.SideChannelCancellationEnabled())
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	_, err := os.Stat(nonExistentPath)
	require.True(t, os.IsNotExist(err))

	t.Setenv("PYPROC_SOCKET_PATH", "/tmp/coworker.sock")

	cfg, err := Load(nonExistentPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "/tmp/coworker.sock", cfg.SocketPath)
}

func TestLoad_NoConfigFile_MissingSocketPath(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	_, err := Load(nonExistentPath)
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "auto", cfg.Codec)
	assert.Equal(t, "pyproc-worker", cfg.Telemetry.ServiceName)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "config.yaml", filepath.Base(path))
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()
	assert.Equal(t, "coworker", filepath.Base(dir))
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("PYPROC_SOCKET_PATH", "/tmp/env.sock")
	t.Setenv("PYPROC_CODEC_TYPE", "msgpack")
	t.Setenv("COWORKER_LOG_FORMAT", "json")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
socket_path: "/tmp/file.sock"
codec: "json"
logging:
  format: "text"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.sock", cfg.SocketPath)
	assert.Equal(t, "msgpack", cfg.Codec)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestNew_BindsCLIFlagsAboveEnv(t *testing.T) {
	t.Setenv("PYPROC_SOCKET_PATH", "/tmp/env.sock")

	v := New("")
	v.Set("socket_path", "/tmp/flag.sock")

	cfg, err := Finalize(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.sock", cfg.SocketPath)
}
