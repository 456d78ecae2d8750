// Package analysis stores the assistant's latest written analysis of a child.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
)

const summaryFile = "analysis_summary.json"

// ErrNoSummary is returned when nothing was saved for the child yet.
var ErrNoSummary = errors.New("no analysis summary")

// Summary is the shape free-text analyses are wrapped into.
type Summary struct {
	Timestamp   time.Time `json:"timestamp"`
	Analysis    string    `json:"analysis"`
	KeyPoints   []string  `json:"key_points"`
	ActionItems []string  `json:"action_items"`
	Concerns    []string  `json:"concerns"`
}

// Store reads and writes analysis_summary.json.
type Store struct {
	fileProvider storage_manager.FileProvider
	now          func() time.Time
}

// NewStore creates a store. The provider is rooted at the children directory.
func NewStore(provider storage_manager.FileProvider, now func() time.Time) *Store {
	if provider == nil {
		panic("file provider cannot be nil")
	}
	if now == nil {
		now = time.Now
	}
	return &Store{fileProvider: provider, now: now}
}

// Save stores text as given when it is a JSON object, otherwise wraps it
// into a Summary. It returns the stored document.
func (s *Store) Save(ctx context.Context, child, text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("analysis text cannot be empty")
	}

	var doc json.RawMessage
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		doc = json.RawMessage(text)
	} else {
		wrapped, err := json.Marshal(Summary{
			Timestamp:   s.now(),
			Analysis:    text,
			KeyPoints:   []string{},
			ActionItems: []string{},
			Concerns:    []string{},
		})
		if err != nil {
			return nil, err
		}
		doc = wrapped
	}

	if err := s.fileProvider.Write(ctx, summaryPath(child), doc); err != nil {
		return nil, fmt.Errorf("failed to write analysis summary for %s: %w", child, err)
	}
	return doc, nil
}

// Get returns the stored document or ErrNoSummary.
func (s *Store) Get(ctx context.Context, child string) (json.RawMessage, error) {
	data, err := s.fileProvider.Read(ctx, summaryPath(child))
	if err != nil {
		if errors.Is(err, storage_manager.ErrNotFound) {
			return nil, fmt.Errorf("%w for %s", ErrNoSummary, child)
		}
		return nil, err
	}
	return data, nil
}

func summaryPath(child string) string {
	return path.Join(children.SafeName(child), summaryFile)
}
