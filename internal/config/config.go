// Package config holds the application configuration: a YAML file overlaid
// with environment variables, validated as a whole.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/pkg/config"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/robfig/cron/v3"
)

// CronParser parses schedule expressions. The seconds field is required.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// AppConfig holds all application configuration
type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"librus-mcp"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`

	Logging  LoggingConfig           `yaml:"logging"`
	Storage  StorageConfig           `yaml:"storage"`
	Portal   PortalConfig            `yaml:"portal"`
	Scraping ScrapingConfig          `yaml:"scraping"`
	Archive  ArchiveConfig           `yaml:"archive"`
	Cache    CacheConfig             `yaml:"cache"`
	Schedule ScheduleConfig          `yaml:"schedule"`
	MCP      MCPConfig               `yaml:"mcp"`
	HTTP     config.HTTPServerConfig `yaml:"http"`
	Security SecurityConfig          `yaml:"security"`
	Metrics  config.MetricsConfig    `yaml:"metrics"`
	Health   HealthConfig            `yaml:"health"`
	Query    QueryConfig             `yaml:"query"`

	Children []children.Child `yaml:"children"`
}

// Load reads path (env only when empty), fills child credentials from
// LIBRUS_<NAME>_LOGIN / LIBRUS_<NAME>_PASSWORD and validates the result.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := config.GetConfig(cfg, path, false); err != nil {
		return nil, err
	}
	cfg.ApplyCredentialEnv(os.LookupEnv)
	return cfg, nil
}

// CredentialEnvPrefix returns the environment prefix for a child's
// credentials, e.g. "LIBRUS_JAN_MARIA" for "Jan Maria".
func CredentialEnvPrefix(name string) string {
	var b strings.Builder
	b.WriteString("LIBRUS_")
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// ApplyCredentialEnv fills empty logins and passwords from the environment.
// Values in the file win.
func (c *AppConfig) ApplyCredentialEnv(lookup func(string) (string, bool)) {
	for i := range c.Children {
		prefix := CredentialEnvPrefix(c.Children[i].Name)
		if v, ok := lookup(prefix + "_LOGIN"); ok && c.Children[i].Login == "" {
			c.Children[i].Login = v
		}
		if v, ok := lookup(prefix + "_PASSWORD"); ok && c.Children[i].Password == "" {
			c.Children[i].Password = v
		}
	}
}

// Resolver builds the alias resolver for the configured children.
func (c AppConfig) Resolver() (*children.Resolver, error) {
	return children.NewResolver(c.Children)
}

// Validate validates the configuration and returns an error if invalid.
// Missing child credentials are not an error here; they only fail logins
// for that child.
func (c AppConfig) Validate() error {
	var result error

	if err := (config.CommonConfig{LogLevel: c.Logging.Level, LogFormat: c.Logging.Format}).Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			result = multierror.Append(result, fmt.Errorf("storage.local_dir is required for the local backend"))
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("storage.s3_bucket is required for the s3 backend"))
		}
	case "git":
		if c.Storage.GitPath == "" {
			result = multierror.Append(result, fmt.Errorf("storage.git_path is required for the git backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("storage.backend must be one of [local, s3, git], got %q", c.Storage.Backend))
	}

	switch c.Archive.Backend {
	case ArchiveBackendFile:
	case ArchiveBackendSQLite:
		if c.Archive.SQLitePath == "" {
			result = multierror.Append(result, fmt.Errorf("archive.sqlite_path is required for the sqlite backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("archive.backend must be file or sqlite, got %q", c.Archive.Backend))
	}

	if c.Cache.Enabled {
		if c.Cache.RedisURL == "" {
			result = multierror.Append(result, fmt.Errorf("cache.redis_url is required when the cache is enabled"))
		}
		if c.Cache.TTL <= 0 {
			result = multierror.Append(result, fmt.Errorf("cache.ttl must be greater than 0"))
		}
	}

	if c.Schedule.Cron != "" {
		if _, err := CronParser.Parse(c.Schedule.Cron); err != nil {
			result = multierror.Append(result, fmt.Errorf("schedule.cron: %w", err))
		}
	}

	if !slices.Contains([]string{TransportStdio, TransportHTTP}, c.MCP.Transport) {
		result = multierror.Append(result, fmt.Errorf("mcp.transport must be stdio or http, got %q", c.MCP.Transport))
	}
	if c.MCP.Transport == TransportHTTP {
		if err := c.HTTP.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if !strings.HasPrefix(c.MCP.Path, "/") {
			result = multierror.Append(result, fmt.Errorf("mcp.path must start with /, got %q", c.MCP.Path))
		}
	}

	if err := c.Metrics.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Health.Enabled && (c.Health.Port < 1 || c.Health.Port > 65535) {
		result = multierror.Append(result, fmt.Errorf("health port must be between 1-65535, got %d", c.Health.Port))
	}

	if c.Scraping.MaxMessages <= 0 || c.Scraping.MaxAnnouncements <= 0 {
		result = multierror.Append(result, fmt.Errorf("scraping limits must be greater than 0"))
	}
	if c.Scraping.CalendarMonthsAhead < 0 || c.Scraping.CalendarMonthsAhead > 12 {
		result = multierror.Append(result, fmt.Errorf("scraping.calendar_months_ahead must be between 0 and 12"))
	}
	if c.Portal.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("portal.request_timeout must be greater than 0"))
	}
	if c.Query.HomeworkDays <= 0 {
		result = multierror.Append(result, fmt.Errorf("query.homework_days must be greater than 0"))
	}

	if _, err := children.NewResolver(c.Children); err != nil {
		result = multierror.Append(result, fmt.Errorf("children: %w", err))
	}

	return result
}

// LogConfig logs the current configuration (without sensitive data)
func (c AppConfig) LogConfig(log logger.Logger) {
	withCreds := 0
	for _, child := range c.Children {
		if child.Login != "" && child.Password != "" {
			withCreds++
		}
	}
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("storage_backend", c.Storage.Backend),
		logger.StringField("archive_backend", c.Archive.Backend),
		logger.BoolField("cache_enabled", c.Cache.Enabled),
		logger.StringField("transport", c.MCP.Transport),
		logger.StringField("schedule", c.Schedule.Cron),
		logger.BoolField("auto_login", c.Portal.AutoLogin),
		logger.IntField("children", len(c.Children)),
		logger.IntField("children_with_credentials", withCreds),
	)
}
