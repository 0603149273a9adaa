package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"./data"}, c.Paths)
	assert.Equal(t, BackendBadger, c.Backend)
	assert.Equal(t, CompressionNone, c.Compression)
	assert.Equal(t, "local", c.Agent)
	assert.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
paths: ["/var/lib/courses"]
minimumFreeGB: 2
backend: memory
compression: lzma
garbageCollectionInterval: 5
repairInterval: 30
workers: 4
agent: alice
logFormat: json
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/var/lib/courses"}, c.Paths)
	assert.Equal(t, 2, c.MinimumFreeGB)
	assert.Equal(t, BackendMemory, c.Backend)
	assert.Equal(t, CompressionLZMA, c.Compression)
	assert.Equal(t, 512, c.CompressionThreshold)
	assert.Equal(t, 5, c.GarbageCollectionInterval)
	assert.Equal(t, 30, c.RepairInterval)
	assert.Equal(t, 4, c.Workers)
	assert.Equal(t, "alice", c.Agent)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "json", c.LogFormat)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	_, err := Load(writeConfig(t, "backend: postgres\n"))
	assert.ErrorContains(t, err, "unknown backend")

	_, err = Load(writeConfig(t, "compression: zstd\n"))
	assert.ErrorContains(t, err, "unknown compression")

	_, err = Load(writeConfig(t, "port: 4242\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
