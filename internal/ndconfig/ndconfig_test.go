package ndconfig

import (
	"os"
	"testing"

	"gotest.tools/v3/assert"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	assert.NilError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("NDPKG_REGISTRY")
	os.Unsetenv("NDPKG_CACHE_DIR")
	os.Unsetenv("NDPKG_CONCURRENCY")

	cfg, err := Load()
	assert.NilError(t, err)
	assert.Equal(t, cfg.Registry, "https://registry.npmjs.org")
	assert.Assert(t, cfg.Concurrency > 0)
	assert.Assert(t, cfg.Logger != nil)
}

func TestLoadEnvOverride(t *testing.T) {
	withEnv(t, "NDPKG_REGISTRY", "https://registry.example.test")
	withEnv(t, "NDPKG_CONCURRENCY", "7")

	cfg, err := Load()
	assert.NilError(t, err)
	assert.Equal(t, cfg.Registry, "https://registry.example.test")
	assert.Equal(t, cfg.Concurrency, 7)
}
