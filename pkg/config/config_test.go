package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 160, cfg.Limits.SystemOpenMax())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kern.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
limits:
  process_open_max: 8
options:
  waitpid: false
log:
  format: json
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Limits.ProcessOpenMax)
	assert.Equal(t, 256, cfg.Limits.PIDMax, "unset keys keep defaults")
	assert.False(t, cfg.Options.Waitpid)
	assert.True(t, cfg.Options.Fork)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"open max", "limits: {process_open_max: 3}", ErrOpenMax},
		{"pid max", "limits: {pid_max: 1}", ErrPIDMax},
		{"threads", "limits: {max_threads: 0}", ErrMaxThreads},
		{"budget", "limits: {addrspace_budget: -1}", ErrBudget},
		{"level", "log: {level: loud}", ErrLogLevel},
		{"format", "log: {format: xml}", ErrLogFormat},
		{"metrics", "metrics: {addr: not-an-address}", ErrMetricsAddr},
		{"trace", "trace: {exporter: jaeger}", ErrTraceExporter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "kern.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			_, err := Load(path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateAcceptsOptionalFields(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "auto"
	cfg.Trace.Exporter = "stdout"
	cfg.Metrics.Addr = "localhost:9090"
	assert.NoError(t, cfg.Validate())
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kern.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: [oops"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, Default(), back)
	assert.Contains(t, string(data), "process_open_max: 16")
}
