// Package state_manager keeps the per-child record of the last successful
// collection and derives the FULL/DELTA decision from it.
package state_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
)

const stateFile = "state.json"

// RunMode is the collection mode of one run.
type RunMode string

const (
	ModeFull  RunMode = "FULL"
	ModeDelta RunMode = "DELTA"
)

// State is the persisted session state of one child.
type State struct {
	ChildName      string     `json:"child_name"`
	LastScrape     *time.Time `json:"last_scrape_iso"`
	SetupCompleted bool       `json:"setup_completed"`
}

// Manager reads and writes state.json per child.
type Manager struct {
	fileProvider storage_manager.FileProvider
	childLocks   map[string]*sync.Mutex
	childLockMux sync.Mutex
	log          logger.Logger
}

// Config holds configuration for the state manager.
type Config struct {
	FileProvider storage_manager.FileProvider
	Logger       logger.Logger
}

// New creates a state manager. FileProvider is rooted at the children directory.
func New(cfg Config) *Manager {
	if cfg.FileProvider == nil {
		panic("file provider cannot be nil")
	}
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	return &Manager{
		fileProvider: cfg.FileProvider,
		childLocks:   make(map[string]*sync.Mutex),
		log:          cfg.Logger,
	}
}

// Mode is FULL when there is no cutoff or a full run was requested, DELTA otherwise.
func Mode(cutoff *time.Time, forceFull bool) RunMode {
	if cutoff == nil || forceFull {
		return ModeFull
	}
	return ModeDelta
}

// EffectiveCutoff back-dates a cutoff to 23:59:59 of the previous calendar day
// as seen in loc. Stored cutoffs carry the process zone, so callers pass the
// zone the portal dates its records in.
func EffectiveCutoff(cutoff time.Time, loc *time.Location) time.Time {
	local := cutoff.In(loc)
	y, m, d := local.AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}

// Get returns the stored state, or a fresh one when the child was never collected.
func (m *Manager) Get(ctx context.Context, child string) (*State, error) {
	data, err := m.fileProvider.Read(ctx, statePath(child))
	if err != nil {
		if errors.Is(err, storage_manager.ErrNotFound) {
			return &State{ChildName: child}, nil
		}
		return nil, fmt.Errorf("failed to read state for %s: %w", child, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for %s: %w", child, err)
	}
	if st.ChildName == "" {
		st.ChildName = child
	}
	return &st, nil
}

// GetCutoff returns the last successful collection time, nil if there was none.
func (m *Manager) GetCutoff(ctx context.Context, child string) (*time.Time, error) {
	st, err := m.Get(ctx, child)
	if err != nil {
		return nil, err
	}
	return st.LastScrape, nil
}

// Advance records ts as the last successful collection. Call it once per run,
// after every other write of that run has succeeded.
func (m *Manager) Advance(ctx context.Context, child string, ts time.Time) error {
	return m.update(ctx, child, func(st *State) {
		st.LastScrape = &ts
	})
}

// MarkSetupCompleted records that a portal session has been established.
func (m *Manager) MarkSetupCompleted(ctx context.Context, child string) error {
	return m.update(ctx, child, func(st *State) {
		st.SetupCompleted = true
	})
}

func (m *Manager) update(ctx context.Context, child string, fn func(*State)) error {
	lock := m.getChildLock(child)
	lock.Lock()
	defer lock.Unlock()

	st, err := m.Get(ctx, child)
	if err != nil {
		return err
	}
	st.ChildName = child
	fn(st)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := m.fileProvider.Write(ctx, statePath(child), data); err != nil {
		return fmt.Errorf("failed to write state for %s: %w", child, err)
	}

	m.log.Debug("State updated",
		logger.ChildField(child),
		logger.BoolField("setup_completed", st.SetupCompleted))
	return nil
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

func statePath(child string) string {
	return path.Join(children.SafeName(child), stateFile)
}
