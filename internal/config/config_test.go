package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile writes content to a temp YAML file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validConfig = `
source:
  endpoint: https://content.example.com/api
  perPage: 50
index:
  endpoint: https://index.example.com
  appId: APP123
  indexName: content
units:
  - name: products-jp
    collection: products
    region: jp
    priority: 10
  - name: pages
    collection: pages
syncPolicy:
  interval: 30m
scheduler:
  safetyBuffer: 0.2
  interRequestDelay: 200ms
  retryBudget: 3
reconcile:
  safetyThreshold: 0.5
statusDir: /tmp/status
`

func TestLoadConfigValid(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, validConfig)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://content.example.com/api", cfg.Source.Endpoint)
	assert.Equal(t, 50, cfg.Source.GetPerPage())
	assert.Equal(t, "content", cfg.Index.IndexName)
	require.Len(t, cfg.Units, 2)
	assert.Equal(t, "products-jp", cfg.Units[0].Name)
	assert.Equal(t, "jp", cfg.Units[0].Region)
	assert.Equal(t, 10, cfg.Units[0].Priority)
	assert.Equal(t, "30m", cfg.SyncPolicy.Interval)
	assert.InDelta(t, 0.2, cfg.GetSafetyBuffer(), 0.0001)
	assert.InDelta(t, 0.5, cfg.GetSafetyThreshold(), 0.0001)
	assert.Equal(t, "/tmp/status", cfg.GetStatusDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
`)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, DefaultPerPage, cfg.Source.GetPerPage())
	assert.InDelta(t, DefaultSafetyBuffer, cfg.GetSafetyBuffer(), 0.0001)
	assert.InDelta(t, DefaultSafetyThreshold, cfg.GetSafetyThreshold(), 0.0001)
	assert.Equal(t, DefaultStatusDir, cfg.GetStatusDir())
	assert.Nil(t, cfg.SyncPolicy)
}

func TestLoadConfigValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing source endpoint",
			content: `
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
`,
			wantErr: "source.endpoint is required",
		},
		{
			name: "missing index endpoint",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  indexName: content
units:
  - name: pages
    collection: pages
`,
			wantErr: "index.endpoint is required",
		},
		{
			name: "missing index name",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
units:
  - name: pages
    collection: pages
`,
			wantErr: "index.indexName is required",
		},
		{
			name: "no units",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units: []
`,
			wantErr: "at least one sync unit must be configured",
		},
		{
			name: "unit without name",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - collection: pages
`,
			wantErr: "unit[0]: name is required",
		},
		{
			name: "unit without collection",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
`,
			wantErr: "unit[0] (pages): collection is required",
		},
		{
			name: "duplicate unit names",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
  - name: pages
    collection: pages
`,
			wantErr: "duplicate unit name 'pages'",
		},
		{
			name: "invalid sync interval",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
syncPolicy:
  interval: not-a-duration
`,
			wantErr: "syncPolicy.interval must be a valid duration",
		},
		{
			name: "safety buffer out of range",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
scheduler:
  safetyBuffer: 1.5
`,
			wantErr: "scheduler.safetyBuffer must be between 0.0 and 1.0",
		},
		{
			name: "safety threshold out of range",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
reconcile:
  safetyThreshold: 2.0
`,
			wantErr: "reconcile.safetyThreshold must be between 0.0 and 1.0",
		},
		{
			name: "negative priority",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
    priority: -1
`,
			wantErr: "priority must not be negative",
		},
		{
			name: "negative retry budget",
			content: `
source:
  endpoint: https://content.example.com/api
index:
  endpoint: https://index.example.com
  indexName: content
units:
  - name: pages
    collection: pages
scheduler:
  retryBudget: -2
`,
			wantErr: "scheduler.retryBudget must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfigFile(t, tt.content)
			_, err := LoadConfig(WithConfigPath(path))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestLoadConfigRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "{not: valid: yaml:")
	_, err := LoadConfig(WithConfigPath(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestSourceGetToken(t *testing.T) {
	tests := []struct {
		name      string
		tokenFile string
		envValue  string
		want      string
		wantErr   bool
	}{
		{name: "from file", tokenFile: "token-from-file\n", want: "token-from-file"},
		{name: "from env", envValue: "token-from-env", want: "token-from-env"},
		{name: "file wins over env", tokenFile: "file-token", envValue: "env-token", want: "file-token"},
		{name: "neither configured", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &SourceConfig{}
			if tt.tokenFile != "" {
				path := filepath.Join(t.TempDir(), "token")
				require.NoError(t, os.WriteFile(path, []byte(tt.tokenFile), 0600))
				src.TokenFile = path
			}
			t.Setenv("MIZUHO_SOURCE_TOKEN", tt.envValue)

			token, err := src.GetToken()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestIndexGetAPIKey(t *testing.T) {
	t.Run("from file trims whitespace", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key")
		require.NoError(t, os.WriteFile(path, []byte("  secret-key \n"), 0600))

		idx := &IndexConfig{APIKeyFile: path}
		key, err := idx.GetAPIKey()
		require.NoError(t, err)
		assert.Equal(t, "secret-key", key)
	})

	t.Run("from env", func(t *testing.T) {
		t.Setenv("MIZUHO_INDEX_API_KEY", "env-key")

		idx := &IndexConfig{}
		key, err := idx.GetAPIKey()
		require.NoError(t, err)
		assert.Equal(t, "env-key", key)
	})

	t.Run("missing file errors", func(t *testing.T) {
		t.Setenv("MIZUHO_INDEX_API_KEY", "")

		idx := &IndexConfig{APIKeyFile: filepath.Join(t.TempDir(), "missing")}
		_, err := idx.GetAPIKey()
		require.Error(t, err)
	})
}

func TestGetUnit(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Units: []UnitConfig{
			{Name: "products-jp", Collection: "products", Region: "jp"},
			{Name: "pages", Collection: "pages"},
		},
	}

	unit := cfg.GetUnit("pages")
	require.NotNil(t, unit)
	assert.Equal(t, "pages", unit.Collection)

	assert.Nil(t, cfg.GetUnit("unknown"))
}
