package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/atomtable/pkg/config"
)

const (
	testShards     = 16
	testCapacity   = 4096
	testWorkers    = 32
	testIterations = 500
	testPool       = 1000
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "atomtable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, `
table:
  shards: 16
  capacity: 4096
bench:
  workers: 32
  iterations: 500
  pool: 1000
export:
  format: yaml
  compress: true
logging:
  level: debug
  format: json
telemetry:
  otlp_endpoint: localhost:4317
  otlp_insecure: true
  sample_ratio: 0.5
  trace_verbose: true
  metrics_addr: ":9090"
`))
	require.NoError(t, err)

	assert.Equal(t, testShards, cfg.Table.Shards)
	assert.Equal(t, testCapacity, cfg.Table.Capacity)
	assert.Equal(t, testWorkers, cfg.Bench.Workers)
	assert.Equal(t, testIterations, cfg.Bench.Iterations)
	assert.Equal(t, testPool, cfg.Bench.Pool)
	assert.Equal(t, config.FormatYAML, cfg.Export.Format)
	assert.True(t, cfg.Export.Compress)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, config.LogFormatJSON, cfg.Logging.Format)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRatio, 1e-9)
	assert.True(t, cfg.Telemetry.TraceVerbose)
	assert.Equal(t, ":9090", cfg.Telemetry.MetricsAddr)
}

// Not parallel: t.Setenv.
func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("ATOMTABLE_BENCH_WORKERS", "3")
	t.Setenv("ATOMTABLE_TELEMETRY_METRICS_ADDR", "127.0.0.1:9464")

	cfg, err := config.LoadConfig(writeConfig(t, "bench:\n  workers: 32\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Bench.Workers)
	assert.Equal(t, "127.0.0.1:9464", cfg.Telemetry.MetricsAddr)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "table: [unclosed"))
	require.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want error
	}{
		{"negative shards", "table:\n  shards: -1\n", config.ErrInvalidShards},
		{"negative capacity", "table:\n  capacity: -5\n", config.ErrInvalidCapacity},
		{"zero workers", "bench:\n  workers: 0\n", config.ErrInvalidWorkers},
		{"zero iterations", "bench:\n  iterations: 0\n", config.ErrInvalidIterations},
		{"zero pool", "bench:\n  pool: 0\n", config.ErrInvalidPool},
		{"bad format", "export:\n  format: xml\n", config.ErrInvalidFormat},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"bad log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"ratio above one", "telemetry:\n  sample_ratio: 1.5\n", config.ErrInvalidSampling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Level = "WARN"
	require.NoError(t, cfg.Validate())

	cfg.Bench.Pool = -1
	require.ErrorIs(t, cfg.Validate(), config.ErrInvalidPool)
}
