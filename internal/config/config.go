// Package config loads run settings from defaults, a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/jamesainslie/go-der/internal/bench"
)

// Environment variables read by ApplyEnv.
const (
	EnvModelPath     = "DER_MODEL_PATH"
	EnvTokenizerPath = "DER_TOKENIZER_PATH"
	EnvWorkers       = "DER_WORKERS"
	EnvEntityType    = "DER_ENTITY_TYPE"
)

// DefaultOutput is the predictions file written when none is configured.
const DefaultOutput = "output.json"

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Model locates the recognizer's files and tunes it.
type Model struct {
	Path      string   `yaml:"path"`
	Tokenizer string   `yaml:"tokenizer"`
	Labels    []string `yaml:"labels"`
	PoolSize  int      `yaml:"pool_size"`
	Threshold float32  `yaml:"threshold"`
}

// Config holds the settings of a recognition and evaluation run.
type Config struct {
	Model      Model  `yaml:"model"`
	EntityType string `yaml:"entity_type"`
	Workers    int    `yaml:"workers"`
	Output     string `yaml:"output"`
	Convention string `yaml:"convention"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		EntityType: bench.DefaultEntityType,
		Workers:    1,
		Output:     DefaultOutput,
		Convention: bench.Strict.String(),
	}
}

// Load returns defaults overlaid with the YAML file at path (if path is not
// empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalWithOptions(data, c, yaml.DisallowUnknownField()); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the DER_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModelPath); ok && v != "" {
		c.Model.Path = v
	}
	if v, ok := lookup(EnvTokenizerPath); ok && v != "" {
		c.Model.Tokenizer = v
	}
	if v, ok := lookup(EnvEntityType); ok && v != "" {
		c.EntityType = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvWorkers, v)
		}
		c.Workers = n
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are skipped; variables that
// are already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Validate reports every problem found, each wrapped in ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Model.Path == "" {
		invalid("model path is required (--model or %s)", EnvModelPath)
	}
	if c.Model.Tokenizer == "" {
		invalid("tokenizer path is required (--tokenizer or %s)", EnvTokenizerPath)
	}
	if c.Model.PoolSize < 0 {
		invalid("model.pool_size must not be negative, got %d", c.Model.PoolSize)
	}
	if c.Model.Threshold < 0 || c.Model.Threshold > 1 {
		invalid("model.threshold must be within [0, 1], got %v", c.Model.Threshold)
	}
	if c.Workers < 1 {
		invalid("workers must be at least 1, got %d", c.Workers)
	}
	if c.Output == "" {
		invalid("output path is required")
	}
	if _, err := bench.ParseConvention(c.Convention); err != nil {
		invalid("%v", err)
	}

	return errors.Join(errs...)
}

// ParsedConvention returns the configured scoring convention.
func (c Config) ParsedConvention() bench.Convention {
	conv, err := bench.ParseConvention(c.Convention)
	if err != nil {
		return bench.Strict
	}
	return conv
}
