// Package storage_manager provides the storage abstraction behind every per-child file:
// scrape state, memory, archive snapshots, reports, tasks and portal cookies.
// Local filesystem, S3 and git-versioned backends hand out prefix-scoped providers.
package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Read when the file does not exist, whatever the backend.
var ErrNotFound = errors.New("object not found")

// FileProvider defines the interface for file storage operations.
type FileProvider interface {
	// Read returns ErrNotFound (possibly wrapped) for a missing file
	Read(ctx context.Context, path string) ([]byte, error)

	// Write replaces the whole file, creating it if it doesn't exist
	Write(ctx context.Context, path string, data []byte) error

	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes a file; deleting a missing file is not an error
	Delete(ctx context.Context, path string) error

	// List returns slash-separated paths of files under a prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalFileProvider implements FileProvider for local filesystem.
type LocalFileProvider struct {
	baseDir string
}

// NewLocalFileProvider creates a new local file provider rooted at baseDir.
func NewLocalFileProvider(baseDir string) *LocalFileProvider {
	return &LocalFileProvider{baseDir: baseDir}
}

func (p *LocalFileProvider) fullPath(path string) string {
	return filepath.Join(p.baseDir, filepath.FromSlash(path))
}

// Read reads a file from the local filesystem.
func (p *LocalFileProvider) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(p.fullPath(path)) //nolint:gosec // G304: Path is constructed from trusted baseDir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Write writes to a temporary file and renames it over the target, so readers
// never observe a half-written document.
func (p *LocalFileProvider) Write(_ context.Context, path string, data []byte) error {
	fullPath := p.fullPath(path)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Exists checks if a file exists on the local filesystem.
func (p *LocalFileProvider) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(p.fullPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes a file from the local filesystem.
func (p *LocalFileProvider) Delete(_ context.Context, path string) error {
	err := os.Remove(p.fullPath(path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns files under prefix, skipping in-flight temp files.
func (p *LocalFileProvider) List(_ context.Context, prefix string) ([]string, error) {
	return walkFiles(p.baseDir, p.fullPath(prefix), nil)
}

func walkFiles(root, searchPath string, skipDir func(name string) bool) ([]string, error) {
	result := []string{}
	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if skipDir != nil && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Contains(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err == nil {
			result = append(result, filepath.ToSlash(rel))
		}
		return nil
	})
	return result, err
}

// S3FileProvider implements FileProvider for AWS S3.
type S3FileProvider struct {
	bucket   string
	prefix   string
	s3Client S3Client
}

// NewS3FileProvider creates a new S3 file provider.
func NewS3FileProvider(bucket, prefix string, s3Client S3Client) *S3FileProvider {
	return &S3FileProvider{bucket: bucket, prefix: strings.Trim(prefix, "/"), s3Client: s3Client}
}

// Read reads a file from S3.
func (p *S3FileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.s3Client.GetObject(ctx, p.bucket, p.getKey(path))
}

// Write writes data to S3.
func (p *S3FileProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.s3Client.PutObject(ctx, p.bucket, p.getKey(path), data)
}

// Exists returns (false, nil) only for "not found"; other failures propagate.
func (p *S3FileProvider) Exists(ctx context.Context, path string) (bool, error) {
	err := p.s3Client.HeadObject(ctx, p.bucket, p.getKey(path))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a file from S3.
func (p *S3FileProvider) Delete(ctx context.Context, path string) error {
	return p.s3Client.DeleteObject(ctx, p.bucket, p.getKey(path))
}

// List returns files matching a prefix in S3, relative to the provider prefix.
func (p *S3FileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.s3Client.ListObjects(ctx, p.bucket, p.getKey(prefix))
	if err != nil {
		return nil, err
	}

	result := []string{}
	base := p.getKey("")
	for _, key := range keys {
		if len(key) > len(base) {
			result = append(result, key[len(base):])
		}
	}
	return result, nil
}

func (p *S3FileProvider) getKey(path string) string {
	if p.prefix == "" {
		return path
	}
	return p.prefix + "/" + path
}

// PrefixedFileProvider scopes a FileProvider to a namespace, e.g. one child's directory.
type PrefixedFileProvider struct {
	provider FileProvider
	prefix   string
}

// NewPrefixedFileProvider creates a new prefixed file provider.
func NewPrefixedFileProvider(provider FileProvider, prefix string) *PrefixedFileProvider {
	return &PrefixedFileProvider{provider: provider, prefix: strings.Trim(prefix, "/")}
}

// Read reads a file with the prefix applied.
func (p *PrefixedFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.provider.Read(ctx, p.prefixPath(path))
}

// Write writes data with the prefix applied.
func (p *PrefixedFileProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.provider.Write(ctx, p.prefixPath(path), data)
}

// Exists checks if a file exists with the prefix applied.
func (p *PrefixedFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return p.provider.Exists(ctx, p.prefixPath(path))
}

// Delete removes a file with the prefix applied.
func (p *PrefixedFileProvider) Delete(ctx context.Context, path string) error {
	return p.provider.Delete(ctx, p.prefixPath(path))
}

// List returns files under prefix with the namespace stripped from the results.
func (p *PrefixedFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	files, err := p.provider.List(ctx, p.prefixPath(prefix))
	if err != nil {
		return nil, err
	}

	result := []string{}
	base := p.prefixPath("")
	for _, file := range files {
		if strings.HasPrefix(file, base) {
			result = append(result, file[len(base):])
		}
	}
	return result, nil
}

// Scope nests a further namespace under this provider.
func (p *PrefixedFileProvider) Scope(namespace string) *PrefixedFileProvider {
	return NewPrefixedFileProvider(p.provider, p.prefixPath(namespace))
}

func (p *PrefixedFileProvider) prefixPath(path string) string {
	if p.prefix == "" {
		return path
	}
	return p.prefix + "/" + path
}
