// Package config resolves taplive settings from defaults, a project
// config file, and the environment. Flags are layered on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Reporter names.
const (
	ReporterLive  = "live"
	ReporterPlain = "plain"
)

// DefaultTimeoutSeconds matches the per-program timeout TAP harnesses
// traditionally use.
const DefaultTimeoutSeconds = 120

// FileNames are searched in order in the working directory.
var FileNames = []string{".taplive.yaml", ".taplive.yml", ".taplive.toml"} //nolint:gochecknoglobals // read-only search list

// Config is the merged configuration.
type Config struct {
	Reporter     string            `yaml:"reporter" toml:"reporter"`
	Color        *bool             `yaml:"color" toml:"color"`
	Timeout      int               `yaml:"timeout" toml:"timeout"`
	Jobs         int               `yaml:"jobs" toml:"jobs"`
	Interpreters map[string]string `yaml:"interpreters" toml:"interpreters"`
	Record       *bool             `yaml:"record" toml:"record"`
	DBPath       string            `yaml:"db_path" toml:"db_path"`
	Watch        []string          `yaml:"watch" toml:"watch"`
}

// fileConfig is the on-disk layer. Pointer fields tell an explicit zero
// apart from an absent key.
type fileConfig struct {
	Reporter     string            `yaml:"reporter" toml:"reporter"`
	Color        *bool             `yaml:"color" toml:"color"`
	Timeout      *int              `yaml:"timeout" toml:"timeout"`
	Jobs         *int              `yaml:"jobs" toml:"jobs"`
	Interpreters map[string]string `yaml:"interpreters" toml:"interpreters"`
	Record       *bool             `yaml:"record" toml:"record"`
	DBPath       string            `yaml:"db_path" toml:"db_path"`
	Watch        []string          `yaml:"watch" toml:"watch"`
}

// ConfigError reports an unreadable or invalid setting.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Timeout: DefaultTimeoutSeconds,
		Jobs:    runtime.NumCPU(),
		Interpreters: map[string]string{
			".js":  "node",
			".mjs": "node",
			".cjs": "node",
			".sh":  "sh",
			".py":  "python3",
			".pl":  "perl",
			".rb":  "ruby",
		},
	}
}

// Recording reports whether runs are written to the event log. It
// defaults to true.
func (c *Config) Recording() bool {
	return c.Record == nil || *c.Record
}

// Load returns defaults overlaid with the first config file found in dir.
// The path of the file used is returned, or "" when none exists.
func Load(dir string) (Config, string, error) {
	cfg := Default()
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path) //nolint:gosec // path is a fixed name inside the working directory
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return cfg, "", &ConfigError{Source: path, Err: err}
		}
		var file fileConfig
		if filepath.Ext(name) == ".toml" {
			err = toml.Unmarshal(data, &file)
		} else {
			err = yaml.Unmarshal(data, &file)
		}
		if err != nil {
			return cfg, "", &ConfigError{Source: path, Err: err}
		}
		cfg.merge(file)
		return cfg, path, cfg.Validate()
	}
	return cfg, "", nil
}

func (c *Config) merge(o fileConfig) {
	if o.Reporter != "" {
		c.Reporter = o.Reporter
	}
	if o.Color != nil {
		c.Color = o.Color
	}
	if o.Timeout != nil {
		c.Timeout = *o.Timeout
	}
	if o.Jobs != nil && *o.Jobs != 0 {
		c.Jobs = *o.Jobs
	}
	for ext, cmd := range o.Interpreters {
		if cmd == "" {
			delete(c.Interpreters, ext)
			continue
		}
		c.Interpreters[ext] = cmd
	}
	if o.DBPath != "" {
		c.DBPath = o.DBPath
	}
	if len(o.Watch) > 0 {
		c.Watch = o.Watch
	}
	if o.Record != nil {
		c.Record = o.Record
	}
}

// ApplyEnv overlays environment variables:
// TAP_TIMEOUT (seconds), TAPLIVE_REPORTER, TAPLIVE_JOBS, TAPLIVE_RECORD
// and TAPLIVE_DB_PATH.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TAP_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Source: "TAP_TIMEOUT", Err: err}
		}
		c.Timeout = n
	}
	if v := getenv("TAPLIVE_REPORTER"); v != "" {
		c.Reporter = v
	}
	if v := getenv("TAPLIVE_JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Source: "TAPLIVE_JOBS", Err: err}
		}
		c.Jobs = n
	}
	if v := getenv("TAPLIVE_RECORD"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Source: "TAPLIVE_RECORD", Err: err}
		}
		c.Record = &b
	}
	if v := getenv("TAPLIVE_DB_PATH"); v != "" {
		c.DBPath = v
	}
	return c.Validate()
}

// Validate rejects settings the CLI cannot act on.
func (c *Config) Validate() error {
	switch c.Reporter {
	case "", ReporterLive, ReporterPlain:
	default:
		return &ConfigError{Source: "reporter", Err: fmt.Errorf("unknown reporter %q (want %s or %s)", c.Reporter, ReporterLive, ReporterPlain)}
	}
	if c.Timeout < 0 {
		return &ConfigError{Source: "timeout", Err: fmt.Errorf("negative timeout %d", c.Timeout)}
	}
	if c.Jobs < 0 {
		return &ConfigError{Source: "jobs", Err: fmt.Errorf("negative jobs %d", c.Jobs)}
	}
	return nil
}
