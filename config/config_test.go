package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New()
	assert.True(t, c.UseHTTPS)
	assert.Equal(t, 30*time.Second, c.ConnectTimeout)
	assert.Equal(t, 2, c.MaxRetriesPerEndpoint)
	assert.Equal(t, int64(4<<20), c.PartSize)
	assert.Equal(t, 4, c.Concurrency)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := New(WithUseHTTPS(false), WithPartSize(8<<20), WithConcurrency(10))
	assert.False(t, c.UseHTTPS)
	assert.Equal(t, int64(8<<20), c.PartSize)
	assert.Equal(t, 10, c.Concurrency)
}

func TestLoadMergesYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "use_https: false\npart_size_bytes: 1048576\nconcurrency: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.UseHTTPS)
	assert.Equal(t, int64(1048576), c.PartSize)
	assert.Equal(t, 2, c.Concurrency)
	assert.Equal(t, 2, c.MaxRetriesPerEndpoint, "unset fields keep New()'s defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
