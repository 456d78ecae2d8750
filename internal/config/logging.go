package config

import "github.com/lewisedginton/librus_mcp/pkg/logger"

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"json"`
}

// GetLogLevel returns the parsed logger level
func (l LoggingConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(l.Level)
}
