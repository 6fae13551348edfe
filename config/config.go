// Package config loads the settings of the archie binaries.
//
// Values come from three layers, later ones winning:
//
//	Default()                built-in defaults
//	archie.toml | .yaml      optional file, format chosen by extension
//	ARCHIE_*                 environment variables
//
// Environment variable names are the upper-cased file keys joined by
// underscores, for example ARCHIE_HTTP_TIMEOUT=2s or ARCHIE_USE_PATTERN=true.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"archie/pkg"
)

// EnvPrefix starts every environment variable the loader reads.
const EnvPrefix = "ARCHIE"

var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config holds everything a binary needs to build and serve a System.
type Config struct {
	Name             string            `toml:"name" yaml:"name"`
	UsePattern       bool              `toml:"use_pattern" yaml:"use_pattern"`
	ManualValidation bool              `toml:"manual_validation" yaml:"manual_validation"`
	LogLevel         string            `toml:"log_level" yaml:"log_level"`
	HTTP             HTTPConfig        `toml:"http" yaml:"http"`
	CloudEvents      CloudEventsConfig `toml:"cloudevents" yaml:"cloudevents"`
}

type HTTPConfig struct {
	Addr    string   `toml:"addr" yaml:"addr"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
	// IntrospectionPrefix mounts the info and doc endpoints. Empty disables them.
	IntrospectionPrefix string `toml:"introspection_prefix" yaml:"introspection_prefix"`
}

type CloudEventsConfig struct {
	// Path mounts the CloudEvents receiver. Empty disables it.
	Path   string `toml:"path" yaml:"path"`
	Source string `toml:"source" yaml:"source"`
}

// Duration is a time.Duration written as "5s" or "250ms" in files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		Name:       "archie",
		UsePattern: true,
		LogLevel:   "info",
		HTTP: HTTPConfig{
			Addr:                ":8080",
			Timeout:             Duration(5 * time.Second),
			IntrospectionPrefix: "/_system",
		},
		CloudEvents: CloudEventsConfig{
			Path: "/_events",
		},
	}
}

// Load returns the defaults overlaid with the file at path, when path is
// not empty, and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := Parse(data, filepath.Ext(path), &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes data into cfg. format is a file extension such as ".toml",
// ".yaml" or ".yml"; keys missing from data keep their current value.
func Parse(data []byte, format string, cfg *Config) error {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "toml":
		return toml.Unmarshal(data, cfg)
	case "yaml", "yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

type binding struct {
	key   string
	apply func(cfg *Config, raw string) error
}

func stringField(field func(cfg *Config) *string) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}
}

func boolField(field func(cfg *Config) *bool) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

var bindings = []binding{
	{"NAME", stringField(func(c *Config) *string { return &c.Name })},
	{"USE_PATTERN", boolField(func(c *Config) *bool { return &c.UsePattern })},
	{"MANUAL_VALIDATION", boolField(func(c *Config) *bool { return &c.ManualValidation })},
	{"LOG_LEVEL", stringField(func(c *Config) *string { return &c.LogLevel })},
	{"HTTP_ADDR", stringField(func(c *Config) *string { return &c.HTTP.Addr })},
	{"HTTP_TIMEOUT", func(c *Config, raw string) error { return c.HTTP.Timeout.UnmarshalText([]byte(raw)) }},
	{"HTTP_INTROSPECTION_PREFIX", stringField(func(c *Config) *string { return &c.HTTP.IntrospectionPrefix })},
	{"CLOUDEVENTS_PATH", stringField(func(c *Config) *string { return &c.CloudEvents.Path })},
	{"CLOUDEVENTS_SOURCE", stringField(func(c *Config) *string { return &c.CloudEvents.Source })},
}

// ApplyEnv overrides cfg with every ARCHIE_* variable lookup finds. Unset
// variables leave the current value alone.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		key := EnvPrefix + "_" + b.key
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		if err := b.apply(cfg, raw); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	return nil
}

// EnvKeys lists the environment variables ApplyEnv reads.
func EnvKeys() []string {
	keys := make([]string, len(bindings))
	for i, b := range bindings {
		keys[i] = EnvPrefix + "_" + b.key
	}
	return keys
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log_level: %w", err)
	}
	return level, nil
}

// SystemOptions translates the settings into options for pkg.New.
func (c Config) SystemOptions(logger *slog.Logger) []pkg.Option {
	return []pkg.Option{
		pkg.WithName(c.Name),
		pkg.WithPatterns(c.UsePattern),
		pkg.WithManualValidation(c.ManualValidation),
		pkg.WithLogger(logger),
	}
}
