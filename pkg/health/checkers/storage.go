package checkers

import (
	"context"
	"fmt"
	"time"
)

// ReadWriter is the slice of a storage provider the probe needs.
type ReadWriter interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// StorageChecker writes, reads back and removes a small probe file.
type StorageChecker struct {
	provider ReadWriter
	name     string
	path     string
}

// NewStorageChecker creates a storage probe. If name is empty, defaults to "storage".
func NewStorageChecker(provider ReadWriter, name string) *StorageChecker {
	if name == "" {
		name = "storage"
	}
	return &StorageChecker{provider: provider, name: name, path: ".healthcheck"}
}

// Name returns the name of this health check.
func (s *StorageChecker) Name() string {
	return s.name
}

// Check round-trips the probe file.
func (s *StorageChecker) Check(ctx context.Context) error {
	payload := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := s.provider.Write(ctx, s.path, payload); err != nil {
		return fmt.Errorf("storage write failed: %w", err)
	}
	got, err := s.provider.Read(ctx, s.path)
	if err != nil {
		return fmt.Errorf("storage read failed: %w", err)
	}
	if string(got) != string(payload) {
		return fmt.Errorf("storage read back %d bytes, expected %d", len(got), len(payload))
	}
	if err := s.provider.Delete(ctx, s.path); err != nil {
		return fmt.Errorf("storage delete failed: %w", err)
	}
	return nil
}
