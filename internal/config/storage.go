package config

// StorageConfig holds storage/persistence configuration
type StorageConfig struct {
	Backend   string `env:"STORAGE_BACKEND" yaml:"backend" default:"local"`      // "local", "s3", or "git"
	LocalDir  string `env:"STORAGE_LOCAL_DIR" yaml:"local_dir" default:"./data"` // Base directory for local storage
	S3Bucket  string `env:"STORAGE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix  string `env:"STORAGE_S3_PREFIX" yaml:"s3_prefix"`
	S3Region  string `env:"STORAGE_S3_REGION" yaml:"s3_region"`
	S3Profile string `env:"STORAGE_S3_PROFILE" yaml:"s3_profile"`

	GitPath        string `env:"STORAGE_GIT_PATH" yaml:"git_path"`
	GitAuthorName  string `env:"STORAGE_GIT_AUTHOR_NAME" yaml:"git_author_name"`
	GitAuthorEmail string `env:"STORAGE_GIT_AUTHOR_EMAIL" yaml:"git_author_email"`

	// Namespace holds all per-child directories
	Namespace string `env:"STORAGE_NAMESPACE" yaml:"namespace" default:"children"`
}
