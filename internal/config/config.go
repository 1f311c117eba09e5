// Package config holds the explicit configuration value threaded through
// every component. There is no ambient global state: the command layer
// builds one Config and hands it to each constructor.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Depth bounds for transitive resolution.
const (
	MinDepth = 0
	MaxDepth = 10
)

// Duration is a time.Duration that yaml decodes from strings like "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText lets flag values reuse the same syntax as config files.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", text)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration surface of the tool.
type Config struct {
	CacheDir       string   `yaml:"cache_dir"`
	Resolve        bool     `yaml:"resolve"`
	MaxDepth       int      `yaml:"max_depth"`
	ConflictPolicy string   `yaml:"conflict_policy"`
	Mirrors        []string `yaml:"mirrors"`
	Retries        int      `yaml:"retries"`
	RetryDelay     Duration `yaml:"retry_delay"`
	DialTimeout    Duration `yaml:"dial_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
	CacheTTL       Duration `yaml:"cache_ttl"`
	Parallel       int      `yaml:"parallel"`
	VerifyChecksum bool     `yaml:"verify_checksums"`
	Offline        bool     `yaml:"offline"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CacheDir:       defaultCacheDir(),
		Resolve:        true,
		MaxDepth:       3,
		ConflictPolicy: "latest",
		Mirrors: []string{
			"https://updates.jenkins.io",
			"https://mirrors.jenkins-ci.org/updates",
		},
		Retries:        5,
		RetryDelay:     Duration(10 * time.Second),
		DialTimeout:    Duration(10 * time.Second),
		RequestTimeout: Duration(30 * time.Second),
		CacheTTL:       Duration(time.Hour),
		Parallel:       4,
	}
}

// Load overlays the YAML file at path on the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing config file")
	}
	return cfg, nil
}

// Normalize clamps out-of-range values, warning about each adjustment.
func (c *Config) Normalize() {
	if c.MaxDepth < MinDepth || c.MaxDepth > MaxDepth {
		clamped := min(max(c.MaxDepth, MinDepth), MaxDepth)
		log.WithFields(log.Fields{
			"max_depth": c.MaxDepth,
			"clamped":   clamped,
		}).Warn("max depth out of range, clamping")
		c.MaxDepth = clamped
	}
	if c.Retries < 1 {
		c.Retries = 1
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Parallel < 1 {
		c.Parallel = 1
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "jenkinsctl-cache")
	}
	return filepath.Join(home, ".jenkinsctl", "cache")
}
