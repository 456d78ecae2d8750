package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/internal/trend"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
)

const memoryFile = "memory.json"

// Service loads, merges and saves per-child memory.
type Service struct {
	fileProvider storage_manager.FileProvider
	childLocks   map[string]*sync.Mutex
	childLockMux sync.Mutex
	log          logger.Logger
	now          func() time.Time
}

// Config holds configuration for the memory service.
type Config struct {
	FileProvider storage_manager.FileProvider
	Logger       logger.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

// New creates a new memory service with the given configuration.
func New(cfg Config) *Service {
	if cfg.FileProvider == nil {
		panic("file provider cannot be nil")
	}
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		fileProvider: cfg.FileProvider,
		childLocks:   make(map[string]*sync.Mutex),
		log:          cfg.Logger,
		now:          cfg.Now,
	}
}

// Get returns the stored memory, or an empty default when there is none yet.
func (s *Service) Get(ctx context.Context, child string) (*Memory, error) {
	return s.load(ctx, child)
}

// Merge appends the grades of set to the history of their subjects, skipping
// exact duplicates, keeps the last MaxHistory entries per subject, recomputes
// every subject's trend and saves the whole memory.
func (s *Service) Merge(ctx context.Context, child string, set records.Set) (*Memory, MergeStats, error) {
	lock := s.getChildLock(child)
	lock.Lock()
	defer lock.Unlock()

	mem, err := s.load(ctx, child)
	if err != nil {
		return nil, MergeStats{}, err
	}

	stats := MergeStats{Subjects: []string{}}
	touched := make(map[string]struct{})
	for _, g := range set.Grades {
		subject := strings.TrimSpace(g.Subject)
		if subject == "" {
			continue
		}
		entry := entryFromGrade(g)
		history := mem.GradeHistory[subject]
		if slices.Contains(history, entry) {
			stats.Duplicates++
			continue
		}
		history = append(history, entry)
		if len(history) > MaxHistory {
			stats.Dropped += len(history) - MaxHistory
			history = history[len(history)-MaxHistory:]
		}
		mem.GradeHistory[subject] = history
		touched[subject] = struct{}{}
		stats.Added++
	}
	for subject := range touched {
		stats.Subjects = append(stats.Subjects, subject)
	}
	slices.Sort(stats.Subjects)

	recomputeTrends(mem)
	now := s.now()
	mem.LastUpdated = &now

	if err := s.save(ctx, child, mem); err != nil {
		return nil, MergeStats{}, err
	}

	s.log.Info("Memory merged",
		logger.ChildField(child),
		logger.IntField("grades_added", stats.Added),
		logger.IntField("grades_duplicate", stats.Duplicates),
		logger.IntField("subjects", len(mem.GradeHistory)))

	return mem, stats, nil
}

// recomputeTrends refreshes the trend of every subject in history. A subject
// without enough numeric grades keeps its previous trend.
func recomputeTrends(mem *Memory) {
	for subject, history := range mem.GradeHistory {
		symbols := make([]string, len(history))
		for i, e := range history {
			symbols[i] = e.Grade
		}
		if rec, ok := trend.Analyze(symbols); ok {
			mem.Trends[subject] = rec
		}
	}
}

// AddNote appends a timestamped note of the given kind and saves the memory.
func (s *Service) AddNote(ctx context.Context, child string, kind NoteKind, content string) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, fmt.Errorf("note content cannot be empty")
	}
	if _, err := ParseNoteKind(string(kind)); err != nil {
		return Note{}, err
	}

	lock := s.getChildLock(child)
	lock.Lock()
	defer lock.Unlock()

	mem, err := s.load(ctx, child)
	if err != nil {
		return Note{}, err
	}

	note := Note{Content: content, Timestamp: s.now()}
	list := mem.notes(kind)
	*list = append(*list, note)
	mem.LastUpdated = &note.Timestamp

	if err := s.save(ctx, child, mem); err != nil {
		return Note{}, err
	}

	s.log.Info("Note saved",
		logger.ChildField(child),
		logger.StringField("kind", string(kind)))
	return note, nil
}

func (s *Service) load(ctx context.Context, child string) (*Memory, error) {
	data, err := s.fileProvider.Read(ctx, memoryPath(child))
	if err != nil {
		if errors.Is(err, storage_manager.ErrNotFound) {
			return NewMemory(child), nil
		}
		return nil, fmt.Errorf("failed to read memory for %s: %w", child, err)
	}

	var mem Memory
	if err := json.Unmarshal(data, &mem); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory for %s: %w", child, err)
	}
	if mem.ChildName == "" {
		mem.ChildName = child
	}
	mem.normalize()
	return &mem, nil
}

func (s *Service) save(ctx context.Context, child string, mem *Memory) error {
	data, err := json.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}
	if err := s.fileProvider.Write(ctx, memoryPath(child), data); err != nil {
		return fmt.Errorf("failed to write memory for %s: %w", child, err)
	}
	return nil
}

func (s *Service) getChildLock(child string) *sync.Mutex {
	s.childLockMux.Lock()
	defer s.childLockMux.Unlock()

	key := children.SafeName(child)
	lock, exists := s.childLocks[key]
	if !exists {
		lock = &sync.Mutex{}
		s.childLocks[key] = lock
	}
	return lock
}

func memoryPath(child string) string {
	return path.Join(children.SafeName(child), memoryFile)
}
