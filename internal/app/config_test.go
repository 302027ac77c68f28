package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haierkeys/schedule-note-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_CachePolicyKeepsExplicitZero(t *testing.T) {
	path := writeConfig(t, `
device:
  max-cache-size-mb: 0
  cache-duration-days: 0
  auto-cleanup: false
`)
	c, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, domain.CachePolicy{}, c.GetCachePolicy())
}

func TestLoadConfig_CachePolicyDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  server-url: http://127.0.0.1:9000
`)
	c, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, domain.CachePolicy{MaxCacheSizeMb: 50, CacheDurationDays: 7, AutoCleanup: true}, c.GetCachePolicy())
	assert.Equal(t, 4, c.Device.SyncConcurrency)
}
