package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, "unknown", cfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())
	assert.False(t, cfg.GetInsecure())
}

func TestConfigExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ServiceName:    "my-service",
		ServiceVersion: "1.2.3",
		Endpoint:       "collector.example.com:4318",
		Insecure:       true,
	}
	assert.Equal(t, "my-service", cfg.GetServiceName())
	assert.Equal(t, "1.2.3", cfg.GetServiceVersion())
	assert.Equal(t, "collector.example.com:4318", cfg.GetEndpoint())
	assert.True(t, cfg.GetInsecure())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config is valid", cfg: nil},
		{name: "disabled config is valid", cfg: &Config{Enabled: false}},
		{name: "enabled without metrics is valid", cfg: &Config{Enabled: true}},
		{
			name: "enabled with metrics is valid",
			cfg: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.NoError(t, tt.cfg.Validate())
		})
	}
}
