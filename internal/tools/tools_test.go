package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	r, ok := c.Lookup("restart_service")
	assert.True(t, ok)
	assert.Equal(t, "Service PID 404 restarted.", r)

	r, ok = c.Lookup("scale_pods")
	assert.True(t, ok)
	assert.Equal(t, "Deployment scaled to 10 replicas.", r)

	r, ok = c.Lookup("unknown")
	assert.False(t, ok)
	assert.Equal(t, NotFound, r)

	assert.Equal(t, []string{"restart_service", "scale_pods"}, c.Names())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	c, err := Load(strings.NewReader(`
tools:
  drain_node: "Node drained."
  scale_pods: "Deployment scaled to 3 replicas."
`))
	require.NoError(t, err)

	r, _ := c.Lookup("drain_node")
	assert.Equal(t, "Node drained.", r)
	r, _ = c.Lookup("scale_pods")
	assert.Equal(t, "Deployment scaled to 3 replicas.", r)
	r, _ = c.Lookup("restart_service")
	assert.Equal(t, "Service PID 404 restarted.", r)
}

func TestLoadEmptyAndInvalid(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Len(t, c.Names(), 2)

	_, err = Load(strings.NewReader("tool:\n  x: y\n"))
	assert.Error(t, err, "unknown top-level keys are rejected")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  flush_cache: \"Cache flushed.\"\n"), 0o600))
	c, err := LoadFile(path)
	require.NoError(t, err)
	r, ok := c.Lookup("flush_cache")
	assert.True(t, ok)
	assert.Equal(t, "Cache flushed.", r)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
