package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Resolve)
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, "latest", cfg.ConflictPolicy)
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay.Std())
	assert.Equal(t, time.Hour, cfg.CacheTTL.Std())
	assert.NotEmpty(t, cfg.Mirrors)
	assert.NotEmpty(t, cfg.CacheDir)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jenkinsctl.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_depth: 5
conflict_policy: fail
retry_delay: 250ms
mirrors:
  - https://mirror.example.com/updates
offline: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, "fail", cfg.ConflictPolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay.Std())
	assert.Equal(t, []string{"https://mirror.example.com/updates"}, cfg.Mirrors)
	assert.True(t, cfg.Offline)

	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, time.Hour, cfg.CacheTTL.Std())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().MaxDepth, cfg.MaxDepth)
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jenkinsctl.yml")
	require.NoError(t, os.WriteFile(path, []byte("retry_delay: soon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalize_ClampsDepth(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-1, 0},
		{0, 0},
		{3, 3},
		{10, 10},
		{11, 10},
		{100, 10},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.MaxDepth = tt.in
		cfg.Normalize()
		assert.Equal(t, tt.want, cfg.MaxDepth, "max depth %d", tt.in)
	}
}

func TestNormalize_Floors(t *testing.T) {
	cfg := Default()
	cfg.Retries = 0
	cfg.Parallel = -2
	cfg.RetryDelay = Duration(-time.Second)
	cfg.Normalize()

	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, 1, cfg.Parallel)
	assert.Equal(t, time.Duration(0), cfg.RetryDelay.Std())
}
