package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/go-der/internal/bench"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "Disease", cfg.EntityType)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, bench.Strict, cfg.ParsedConvention())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "der.yaml", `
model:
  path: /models/ner.onnx
  tokenizer: /models/sentencepiece.bpe.model
  labels: [O, B-Disease, I-Disease]
  pool_size: 2
  threshold: 0.4
workers: 3
convention: partial
`)

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "/models/ner.onnx", cfg.Model.Path)
	assert.Equal(t, "/models/sentencepiece.bpe.model", cfg.Model.Tokenizer)
	assert.Equal(t, []string{"O", "B-Disease", "I-Disease"}, cfg.Model.Labels)
	assert.Equal(t, 2, cfg.Model.PoolSize)
	assert.InDelta(t, 0.4, cfg.Model.Threshold, 1e-6)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, bench.PartialCredit, cfg.ParsedConvention())

	// Keys absent from the file keep their defaults
	assert.Equal(t, "Disease", cfg.EntityType)
	assert.Equal(t, DefaultOutput, cfg.Output)
}

func TestLoadFile_UnknownKey(t *testing.T) {
	path := writeFile(t, "der.yaml", "modle:\n  path: x\n")

	cfg := Default()
	assert.Error(t, cfg.LoadFile(path))
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = "from-file.onnx"

	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvModelPath:     "env.onnx",
		EnvTokenizerPath: "env.model",
		EnvWorkers:       "8",
		EnvEntityType:    "Chemical",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env.onnx", cfg.Model.Path)
	assert.Equal(t, "env.model", cfg.Model.Tokenizer)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "Chemical", cfg.EntityType)
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = "keep.onnx"

	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{EnvModelPath: ""})))
	assert.Equal(t, "keep.onnx", cfg.Model.Path)
}

func TestApplyEnv_BadWorkers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{EnvWorkers: "many"}))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "der.yaml", "model:\n  path: file.onnx\n  tokenizer: file.model\nworkers: 2\n")
	t.Setenv(EnvWorkers, "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file.onnx", cfg.Model.Path)
	assert.Equal(t, 5, cfg.Workers, "environment overrides the file")
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", EnvTokenizerPath+"=dotenv.model\n")
	t.Setenv(EnvTokenizerPath, "")
	require.NoError(t, os.Unsetenv(EnvTokenizerPath))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "dotenv.model", os.Getenv(EnvTokenizerPath))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Model.Path = "model.onnx"
		cfg.Model.Tokenizer = "sentencepiece.bpe.model"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing model", func(c *Config) { c.Model.Path = "" }, true},
		{"missing tokenizer", func(c *Config) { c.Model.Tokenizer = "" }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"negative pool", func(c *Config) { c.Model.PoolSize = -1 }, true},
		{"threshold above one", func(c *Config) { c.Model.Threshold = 1.5 }, true},
		{"unknown convention", func(c *Config) { c.Convention = "lenient" }, true},
		{"empty output", func(c *Config) { c.Output = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model path")
	assert.Contains(t, err.Error(), "tokenizer path")
	assert.Contains(t, err.Error(), "workers")
}
