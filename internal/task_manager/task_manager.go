// Package task_manager keeps the parent's to-do list per child: pending tasks
// derived from new homework and action items, and completed ones with notes.
package task_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/lewisedginton/librus_mcp/pkg/prefixed_uuid"
	"github.com/lewisedginton/librus_mcp/pkg/utils"
)

const (
	tasksFile = "tasks.json"
	idPrefix  = "task"
)

// ErrTaskNotFound is returned when a task id is not among the pending tasks.
var ErrTaskNotFound = errors.New("task not found")

// Source says where a task came from.
type Source string

const (
	SourceHomework   Source = "homework"
	SourceActionItem Source = "action_item"
)

// Task is one entry of the to-do list.
type Task struct {
	ID          prefixed_uuid.PrefixedUUID `json:"id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description,omitempty"`
	Source      Source                     `json:"source"`
	SourceKey   string                     `json:"source_key"`
	DueDate     string                     `json:"due_date,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
	Notes       string                     `json:"notes,omitempty"`
}

// TaskList is the persisted tasks.json.
type TaskList struct {
	Pending   []Task `json:"pending"`
	Completed []Task `json:"completed"`
}

func (l *TaskList) hasSource(key string) bool {
	for _, list := range [][]Task{l.Pending, l.Completed} {
		for _, t := range list {
			if t.SourceKey == key {
				return true
			}
		}
	}
	return false
}

// Manager reads and writes tasks.json per child.
type Manager struct {
	fileProvider storage_manager.FileProvider
	childLocks   map[string]*sync.Mutex
	childLockMux sync.Mutex
	log          logger.Logger
	now          func() time.Time
}

// Config holds configuration for the task manager.
type Config struct {
	FileProvider storage_manager.FileProvider
	Logger       logger.Logger
	Now          func() time.Time
}

// New creates a task manager. FileProvider is rooted at the children directory.
func New(cfg Config) *Manager {
	if cfg.FileProvider == nil {
		panic("file provider cannot be nil")
	}
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		fileProvider: cfg.FileProvider,
		childLocks:   make(map[string]*sync.Mutex),
		log:          cfg.Logger,
		now:          cfg.Now,
	}
}

// List returns the whole task list.
func (m *Manager) List(ctx context.Context, child string) (*TaskList, error) {
	return m.load(ctx, child)
}

// Pending returns the tasks not yet done.
func (m *Manager) Pending(ctx context.Context, child string) ([]Task, error) {
	l, err := m.load(ctx, child)
	if err != nil {
		return nil, err
	}
	return l.Pending, nil
}

// AddHomework creates a pending task for every homework item not seen before.
// It returns the number of tasks created.
func (m *Manager) AddHomework(ctx context.Context, child string, items []records.HomeworkItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	added := 0
	err := m.update(ctx, child, func(l *TaskList) {
		for _, h := range items {
			key := h.SourceKey()
			if l.hasSource(key) {
				continue
			}
			l.Pending = append(l.Pending, Task{
				ID:          prefixed_uuid.New(idPrefix),
				Title:       fmt.Sprintf("%s: %s", h.Subject, h.Title),
				Description: teacherLine(h.Teacher),
				Source:      SourceHomework,
				SourceKey:   key,
				DueDate:     h.DateDue,
				CreatedAt:   m.now(),
			})
			added++
		}
	})
	if err != nil {
		return 0, err
	}
	if added > 0 {
		m.log.Info("Tasks created from homework", logger.ChildField(child), logger.IntField("count", added))
	}
	return added, nil
}

// AddActionItem creates a pending task for an action item note. It reports
// false when a task for the same text already exists.
func (m *Manager) AddActionItem(ctx context.Context, child, content string) (*Task, bool, error) {
	content = strings.TrimSpace(content)
	key := string(SourceActionItem) + "|" + content

	var created *Task
	err := m.update(ctx, child, func(l *TaskList) {
		if l.hasSource(key) {
			return
		}
		t := Task{
			ID:        prefixed_uuid.New(idPrefix),
			Title:     content,
			Source:    SourceActionItem,
			SourceKey: key,
			CreatedAt: m.now(),
		}
		l.Pending = append(l.Pending, t)
		created = &t
	})
	if err != nil {
		return nil, false, err
	}
	return created, created != nil, nil
}

// MarkDone moves a pending task to completed, stamping it and keeping notes.
func (m *Manager) MarkDone(ctx context.Context, child, id, notes string) (*Task, error) {
	parsed, err := prefixed_uuid.FromStringWithPrefix(idPrefix, strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}

	var done *Task
	err = m.update(ctx, child, func(l *TaskList) {
		for i, t := range l.Pending {
			if t.ID != parsed {
				continue
			}
			t.CompletedAt = utils.ToPtr(m.now())
			t.Notes = strings.TrimSpace(notes)
			l.Pending = append(l.Pending[:i], l.Pending[i+1:]...)
			l.Completed = append(l.Completed, t)
			done = &t
			return
		}
	})
	if err != nil {
		return nil, err
	}
	if done == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	m.log.Info("Task completed", logger.ChildField(child), logger.StringField("task_id", id))
	return done, nil
}

func (m *Manager) update(ctx context.Context, child string, fn func(*TaskList)) error {
	lock := m.getChildLock(child)
	lock.Lock()
	defer lock.Unlock()

	l, err := m.load(ctx, child)
	if err != nil {
		return err
	}
	fn(l)

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}
	if err := m.fileProvider.Write(ctx, tasksPath(child), data); err != nil {
		return fmt.Errorf("failed to write tasks for %s: %w", child, err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, child string) (*TaskList, error) {
	l := &TaskList{Pending: []Task{}, Completed: []Task{}}

	data, err := m.fileProvider.Read(ctx, tasksPath(child))
	if err != nil {
		if errors.Is(err, storage_manager.ErrNotFound) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read tasks for %s: %w", child, err)
	}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks for %s: %w", child, err)
	}
	if l.Pending == nil {
		l.Pending = []Task{}
	}
	if l.Completed == nil {
		l.Completed = []Task{}
	}
	return l, nil
}

func (m *Manager) getChildLock(child string) *sync.Mutex {
	m.childLockMux.Lock()
	defer m.childLockMux.Unlock()

	key := children.SafeName(child)
	lock, ok := m.childLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.childLocks[key] = lock
	}
	return lock
}

func teacherLine(teacher string) string {
	if teacher == "" {
		return ""
	}
	return "Teacher: " + teacher
}

func tasksPath(child string) string {
	return path.Join(children.SafeName(child), tasksFile)
}
