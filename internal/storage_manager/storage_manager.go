package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"
)

// BackendType represents the type of storage backend.
type BackendType string

const (
	// BackendLocal uses the local filesystem for storage.
	BackendLocal BackendType = "local"
	// BackendS3 uses AWS S3 for storage.
	BackendS3 BackendType = "s3"
	// BackendGit uses a local git repository, committing every change.
	BackendGit BackendType = "git"
)

// Config holds the configuration for the StorageManager.
type Config struct {
	Backend BackendType

	LocalConfig *LocalConfig
	S3Config    *S3Config
	GitConfig   *GitProviderOptions
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BaseDir is the root directory for all storage.
	BaseDir string
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	Bucket string
	// Prefix is an optional prefix for all keys in the bucket.
	Prefix string
	// Client is an *s3.Client or anything that speaks the same calls.
	Client S3API
}

// StorageManager hands out namespace-scoped providers over a single backend.
// The collector uses one namespace per child ("children/<safe-name>").
type StorageManager struct {
	config   Config
	provider FileProvider
}

// New creates a new StorageManager with the given configuration.
func New(config Config) (*StorageManager, error) {
	var provider FileProvider

	switch config.Backend {
	case BackendLocal:
		if config.LocalConfig == nil || config.LocalConfig.BaseDir == "" {
			return nil, fmt.Errorf("base directory is required for local backend")
		}
		provider = NewLocalFileProvider(config.LocalConfig.BaseDir)

	case BackendS3:
		if config.S3Config == nil || config.S3Config.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 backend")
		}
		if config.S3Config.Client == nil {
			return nil, fmt.Errorf("s3 client is required for s3 backend")
		}
		provider = NewS3FileProvider(config.S3Config.Bucket, config.S3Config.Prefix, NewAWSS3Client(config.S3Config.Client))

	case BackendGit:
		if config.GitConfig == nil {
			return nil, fmt.Errorf("git config is required for git backend")
		}
		gitProvider, err := NewGitFileProvider(*config.GitConfig)
		if err != nil {
			return nil, err
		}
		provider = gitProvider

	default:
		return nil, fmt.Errorf("unsupported backend type: %q", config.Backend)
	}

	return &StorageManager{config: config, provider: provider}, nil
}

// NewWithProvider creates a StorageManager over a custom FileProvider, mostly for tests.
func NewWithProvider(provider FileProvider) *StorageManager {
	return &StorageManager{provider: provider}
}

// GetProvider returns a FileProvider scoped to namespace.
func (m *StorageManager) GetProvider(namespace string) FileProvider {
	if namespace == "" {
		return m.provider
	}
	return NewPrefixedFileProvider(m.provider, namespace)
}

// GetRootProvider returns the unscoped provider.
func (m *StorageManager) GetRootProvider() FileProvider {
	return m.provider
}

// Backend returns the configured backend type.
func (m *StorageManager) Backend() BackendType {
	return m.config.Backend
}
