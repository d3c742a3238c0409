package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"os161/pkg/config"
	"os161/pkg/console"
	"os161/pkg/kern"
	"os161/pkg/vfs/memfs"
)

func newKernel(t *testing.T) *kern.Kernel {
	t.Helper()
	k, err := kern.New(config.Default(), memfs.New(), console.NewBuffer(""), nil)
	require.NoError(t, err)
	return k
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"shared-offset", "offset seen by parent: 10"},
		{"wait-status", "waitpid(2) = 42"},
		{"exhaust-fds", "opened 13 descriptors, then: too many open files"},
		{"exhaust-files", "system table full at 160 entries"},
		{"stress", "32 processes forked, exited and were reaped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newKernel(t)
			var out bytes.Buffer
			require.NoError(t, scenarios[tt.name].run(context.Background(), k, &out))
			assert.Contains(t, out.String(), tt.want)
			assert.Equal(t, 0, k.Files.InUse())
		})
	}
}

func TestScenarioNamesSorted(t *testing.T) {
	names := scenarioNames()
	assert.Len(t, names, len(scenarios))
	assert.IsIncreasing(t, names)
}

func TestSetupTracing(t *testing.T) {
	shutdown, err := setupTracing(config.TraceConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = setupTracing(config.TraceConfig{Exporter: "zipkin"})
	assert.ErrorIs(t, err, config.ErrTraceExporter)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"text", "json", "auto"} {
		l := newLogger(config.LogConfig{Level: "debug", Format: format})
		assert.True(t, l.Enabled(context.Background(), slog.LevelDebug), format)
	}
	assert.False(t, newLogger(config.LogConfig{Level: "warn"}).Enabled(context.Background(), slog.LevelInfo))
}

func TestRootCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "run", "wait-status"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "second waitpid(2): no such child process")

	out.Reset()
	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "config"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "process_open_max: 16")

	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "run", "nonsense"})
	assert.Error(t, rootCmd.Execute())
}
