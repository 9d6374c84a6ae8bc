package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_StoreFailureFlushesLogAndExitsNonZero(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logFile := filepath.Join(t.TempDir(), "api.log")
	t.Setenv("KV_BACKEND", "bogus")
	t.Setenv("LOG_FILE", logFile)

	assert.Equal(t, 1, run())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kv store unavailable")
	assert.Contains(t, string(data), `"backend":"bogus"`)
}
