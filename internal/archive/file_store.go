package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
)

// FileStore keeps snapshots as <child>/archive/YYYY-MM.json.
type FileStore struct {
	fileProvider storage_manager.FileProvider
}

// NewFileStore creates a file store. The provider is rooted at the children directory.
func NewFileStore(provider storage_manager.FileProvider) *FileStore {
	if provider == nil {
		panic("file provider cannot be nil")
	}
	return &FileStore{fileProvider: provider}
}

func (s *FileStore) Put(ctx context.Context, child string, year int, month time.Month, snap Snapshot) error {
	if err := checkMonth(year, month); err != nil {
		return err
	}
	snap.Month = MonthKey{Year: year, Month: month}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.fileProvider.Write(ctx, archivePath(child, snap.Month), data)
}

func (s *FileStore) Get(ctx context.Context, child string, year int, month time.Month) (*Snapshot, error) {
	key := MonthKey{Year: year, Month: month}
	data, err := s.fileProvider.Read(ctx, archivePath(child, key))
	if err != nil {
		if errors.Is(err, storage_manager.ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", child, key, ErrNotFound)
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", key, err)
	}
	return &snap, nil
}

func archivePath(child string, key MonthKey) string {
	return path.Join(children.SafeName(child), "archive", key.String()+".json")
}
