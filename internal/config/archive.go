package config

import "time"

// Archive backends
const (
	ArchiveBackendFile   = "file"
	ArchiveBackendSQLite = "sqlite"
)

// ArchiveConfig selects where monthly snapshots live
type ArchiveConfig struct {
	Backend    string `env:"ARCHIVE_BACKEND" yaml:"backend" default:"file"`
	SQLitePath string `env:"ARCHIVE_SQLITE_PATH" yaml:"sqlite_path" default:"./data/archive.db"`
}

// CacheConfig holds the optional Redis read cache in front of the archive
type CacheConfig struct {
	Enabled  bool          `env:"CACHE_ENABLED" yaml:"enabled"`
	RedisURL string        `env:"REDIS_URL" yaml:"redis_url"`
	TTL      time.Duration `env:"CACHE_TTL" yaml:"ttl" default:"10m"`
	Prefix   string        `env:"CACHE_PREFIX" yaml:"prefix" default:"librus"`
}
