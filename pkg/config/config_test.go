package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	CommonConfig `yaml:",inline"`
	Http         HTTPServerConfig `yaml:"http"`
	Metrics      MetricsConfig    `yaml:"metrics"`

	Token    string        `env:"TEST_TOKEN" yaml:"token" required:"true"`
	Debug    bool          `env:"DEBUG" yaml:"debug" default:"false"`
	Interval time.Duration `env:"INTERVAL" yaml:"interval" default:"90s"`
	Ratio    float64       `env:"RATIO" yaml:"ratio" default:"0.5"`
	Features []string      `env:"FEATURES" yaml:"features"`
}

func (c testConfig) Validate() error {
	if err := c.CommonConfig.Validate(); err != nil {
		return err
	}
	if err := c.Http.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetConfigFromEnvVars(t *testing.T) {
	defaultHTTP := HTTPServerConfig{Port: 8080, ReadTimeoutSeconds: 15, WriteTimeoutSeconds: 15, IdleTimeoutSeconds: 60, MaxHeaderBytes: 1048576}
	defaultMetrics := MetricsConfig{Port: 9090, EnableScrapeMetrics: true}

	testCases := []struct {
		name    string
		envVars map[string]string
		want    testConfig
		wantErr bool
	}{
		{
			name:    "All defaults, except required field",
			envVars: map[string]string{"TEST_TOKEN": "abc"},
			want: testConfig{
				CommonConfig: CommonConfig{LogLevel: "info", LogFormat: "json"},
				Http:         defaultHTTP,
				Metrics:      defaultMetrics,
				Token:        "abc",
				Interval:     90 * time.Second,
				Ratio:        0.5,
			},
		},
		{
			name: "Override with environment variables",
			envVars: map[string]string{
				"LOG_LEVEL":  "debug",
				"HTTP_PORT":  "3000",
				"TEST_TOKEN": "env-token",
				"DEBUG":      "true",
				"INTERVAL":   "5m",
				"FEATURES":   "grades, homework,notes",
			},
			want: testConfig{
				CommonConfig: CommonConfig{LogLevel: "debug", LogFormat: "json"},
				Http:         HTTPServerConfig{Port: 3000, ReadTimeoutSeconds: 15, WriteTimeoutSeconds: 15, IdleTimeoutSeconds: 60, MaxHeaderBytes: 1048576},
				Metrics:      defaultMetrics,
				Token:        "env-token",
				Debug:        true,
				Interval:     5 * time.Minute,
				Ratio:        0.5,
				Features:     []string{"grades", "homework", "notes"},
			},
		},
		{
			name:    "Missing required field",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name:    "Invalid port number",
			envVars: map[string]string{"TEST_TOKEN": "abc", "HTTP_PORT": "99999"},
			wantErr: true,
		},
		{
			name:    "Unparseable duration",
			envVars: map[string]string{"TEST_TOKEN": "abc", "INTERVAL": "soon"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.envVars {
				t.Setenv(k, v)
			}

			var got testConfig
			err := GetConfigFromEnvVars(&got)

			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetConfigFileThenEnv(t *testing.T) {
	os.Clearenv()
	path := writeYAML(t, `
log_level: warn
http:
  http_port: 9000
token: from-file
features:
  - a
  - b
`)
	t.Setenv("TEST_TOKEN", "from-env")

	var cfg testConfig
	require.NoError(t, GetConfig(&cfg, path, false))

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Http.Port)
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, []string{"a", "b"}, cfg.Features)
	assert.Equal(t, 15, cfg.Http.ReadTimeoutSeconds)
}

func TestGetConfigWithEnvInterpolation(t *testing.T) {
	os.Clearenv()
	path := writeYAML(t, `
log_level: info
token: ${TEST_SECRET}
debug: ${TEST_DEBUG}
features:
  - ${TEST_FEATURE_1}
  - feature2
`)
	t.Setenv("TEST_SECRET", "secret-from-env")
	t.Setenv("TEST_DEBUG", "true")
	t.Setenv("TEST_FEATURE_1", "dynamic-feature")

	var cfg testConfig
	require.NoError(t, GetConfig(&cfg, path, false))

	assert.Equal(t, "secret-from-env", cfg.Token)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"dynamic-feature", "feature2"}, cfg.Features)
}

func TestGetConfigWithEnvInterpolationUnsetVar(t *testing.T) {
	os.Clearenv()
	path := writeYAML(t, "log_level: info\ntoken: ${UNSET_VAR}\n")

	var cfg testConfig
	assert.Error(t, GetConfig(&cfg, path, false))
}

func TestGetConfigFileErrors(t *testing.T) {
	os.Clearenv()
	t.Setenv("TEST_TOKEN", "abc")

	var strict testConfig
	assert.Error(t, GetConfig(&strict, "/does/not/exist.yaml", false))

	var lenient testConfig
	require.NoError(t, GetConfig(&lenient, "/does/not/exist.yaml", true))
	assert.Equal(t, "abc", lenient.Token)
}

func TestHTTPServerConfigHelpers(t *testing.T) {
	cfg := HTTPServerConfig{
		ReadTimeoutSeconds:  30,
		WriteTimeoutSeconds: 60,
		IdleTimeoutSeconds:  120,
	}

	assert.Equal(t, 30*time.Second, cfg.ReadTimeout())
	assert.Equal(t, time.Minute, cfg.WriteTimeout())
	assert.Equal(t, 2*time.Minute, cfg.IdleTimeout())
}

func TestCommonConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     CommonConfig
		wantErr bool
	}{
		{"Valid debug", CommonConfig{LogLevel: "debug"}, false},
		{"Valid warn text", CommonConfig{LogLevel: "warn", LogFormat: "text"}, false},
		{"Case insensitive", CommonConfig{LogLevel: "DEBUG"}, false},
		{"Invalid level", CommonConfig{LogLevel: "invalid"}, true},
		{"Invalid format", CommonConfig{LogLevel: "info", LogFormat: "xml"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetricsConfigValidation(t *testing.T) {
	assert.NoError(t, MetricsConfig{Port: 0}.Validate())
	assert.Error(t, MetricsConfig{Port: 0, ExposeMetrics: true}.Validate())
}
