// Package ndconfig builds the process-wide Config: registry base URL, cache
// directory, worker concurrency and the logger every other package receives.
//
// Grounded on the teacher's internal/config.ParseAndValidate minus its flag
// layer: precedence is env > default, env vars are bound through
// kelseyhightower/envconfig with a fixed prefix, and the hclog.Logger is
// built with the same Level/Color/Output shape (silent unless a level is
// requested, colorized only when logging is actually enabled).
package ndconfig

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"github.com/kelseyhightower/envconfig"
	"github.com/mattn/go-isatty"
)

// envPrefix is the prefix envconfig binds environment variables under, e.g.
// NDPKG_REGISTRY, NDPKG_CACHE_DIR, NDPKG_CONCURRENCY, NDPKG_LOG_LEVEL.
const envPrefix = "NDPKG"

// Config holds the settings every component needs (spec §6).
type Config struct {
	Registry    string `envconfig:"registry"`
	CacheDir    string `envconfig:"cache_dir"`
	Concurrency int    `envconfig:"concurrency"`
	LogLevel    string `envconfig:"log_level"`

	Logger hclog.Logger `ignored:"true"`
}

// IsCI reports whether stdout isn't a terminal or CI is set, matching the
// teacher's own heuristic for deciding whether to default to quieter output.
func IsCI() bool {
	return !isatty.IsTerminal(os.Stdout.Fd()) || os.Getenv("CI") != ""
}

// Load resolves a Config from defaults, then env vars under the NDPKG_
// prefix (precedence: env > default, mirroring the teacher's layering minus
// the flag layer; no command defines flags that override these settings).
func Load() (*Config, error) {
	cacheDir, err := defaultCacheDir()
	if err != nil {
		return nil, err
	}

	c := &Config{
		Registry:    "https://registry.npmjs.org",
		CacheDir:    cacheDir,
		Concurrency: runtime.NumCPU(),
	}

	if err := envconfig.Process(envPrefix, c); err != nil {
		return nil, fmt.Errorf("invalid environment variable: %w", err)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}

	c.Logger = newLogger(c.LogLevel)
	return c, nil
}

func defaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving default cache directory: %w", err)
	}
	return filepath.Join(dir, "ndpkg"), nil
}

// newLogger builds an hclog.Logger the same way the teacher does: silent
// (output discarded) unless a level was actually requested, color only when
// logging is enabled.
func newLogger(levelStr string) hclog.Logger {
	level := hclog.NoLevel
	if levelStr != "" {
		level = hclog.LevelFromString(levelStr)
	}

	var output io.Writer = ioutil.Discard
	color := hclog.ColorOff
	if level != hclog.NoLevel {
		output = os.Stderr
		color = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "ndpkg",
		Level:  level,
		Color:  color,
		Output: output,
	})
}
