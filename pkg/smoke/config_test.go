package smoke

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:19530", cfg.Address())
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 128, cfg.Dimension)
	assert.Equal(t, 100, cfg.Rows)
	assert.Equal(t, "IVF_FLAT", cfg.Index.IndexType)
	assert.Equal(t, 128, cfg.Index.NList)
	assert.Equal(t, 10, cfg.NProbe)
	assert.Equal(t, 5, cfg.Limit)
	assert.False(t, cfg.Drop)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: milvus.internal
port: 29530
timeout: 3s
rows: 20
index:
  indexType: HNSW
  metricType: COSINE
drop: true
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "milvus.internal:29530", cfg.Address())
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 20, cfg.Rows)
	assert.Equal(t, "HNSW", cfg.Index.IndexType)
	assert.Equal(t, "COSINE", cfg.Index.MetricType)
	assert.True(t, cfg.Drop)
	// untouched keys keep defaults
	assert.Equal(t, 128, cfg.Dimension)
	assert.Equal(t, 2*time.Second, cfg.LoadWait)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "unset", value: "", wantHost: "localhost", wantPort: 19530},
		{name: "host only", value: "milvus", wantHost: "milvus", wantPort: 19530},
		{name: "host and port", value: "milvus:29530", wantHost: "milvus", wantPort: 29530},
		{name: "bad port", value: "milvus:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.ApplyEnv(func(key string) string {
				if key == EnvHost {
					return tt.value
				}
				return ""
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, cfg.Host)
			assert.Equal(t, tt.wantPort, cfg.Port)
		})
	}
}

func TestOverlayAppliesOnlyChangedFlags(t *testing.T) {
	parsed := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	parsed.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "1234", "--strict", "--load-wait", "500ms", "--index-type", "FLAT", "--ef", "128"}))

	cfg := DefaultConfig()
	cfg.Host = "from-file"
	cfg.Rows = 7
	require.NoError(t, cfg.Overlay(fs))

	assert.Equal(t, "from-file", cfg.Host)
	assert.Equal(t, 7, cfg.Rows)
	assert.Equal(t, 1234, cfg.Port)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 500*time.Millisecond, cfg.LoadWait)
	assert.Equal(t, "FLAT", cfg.Index.IndexType)
	assert.Equal(t, 128, cfg.Ef)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty host", func(c *Config) { c.Host = "" }, "host is required"},
		{"port range", func(c *Config) { c.Port = 70000 }, "out of range"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"zero dim", func(c *Config) { c.Dimension = 0 }, "dimension"},
		{"zero rows", func(c *Config) { c.Rows = 0 }, "rows"},
		{"zero limit", func(c *Config) { c.Limit = 0 }, "limit"},
		{"query ids above rows", func(c *Config) { c.Rows = 2 }, "query ids"},
		{"bad prefix", func(c *Config) { c.CollectionPrefix = "1-bad" }, "collection prefix"},
		{"bad index", func(c *Config) { c.Index.IndexType = "BOGUS" }, "unsupported index type"},
		{"bad metric", func(c *Config) { c.Index.MetricType = "JACCARD2" }, "unsupported metric type"},
		{"negative ef", func(c *Config) { c.Ef = -1 }, "ef must not be negative"},
		{"ef below limit", func(c *Config) { c.Index.IndexType = "HNSW"; c.Ef = 2 }, "at least limit"},
		{"min recall range", func(c *Config) { c.MinRecall = 1.5 }, "min recall"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, validName("test_collection"))
	assert.True(t, validName("_t1"))
	assert.False(t, validName(""))
	assert.False(t, validName("9lives"))
	assert.False(t, validName("has-dash"))
}
