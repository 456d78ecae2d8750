// Package collector runs one collection for one child: pick FULL or DELTA from
// the stored state, extract every category, filter, merge into memory, archive,
// render the report, derive tasks and finally advance the state.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lewisedginton/librus_mcp/internal/archive"
	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/delta"
	"github.com/lewisedginton/librus_mcp/internal/librus"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/report"
	"github.com/lewisedginton/librus_mcp/internal/state_manager"
	"github.com/lewisedginton/librus_mcp/internal/task_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/lewisedginton/librus_mcp/pkg/metrics"
	"github.com/lewisedginton/librus_mcp/pkg/prefixed_uuid"
)

// ErrRunInProgress is returned when a run for the same child is already going.
var ErrRunInProgress = errors.New("collection already running")

// PageSource extracts raw records per category. Implementations may return
// records older than cutoff; the delta filter decides what is new.
type PageSource interface {
	Messages(ctx context.Context, cutoff *time.Time) ([]records.Message, error)
	Announcements(ctx context.Context, cutoff *time.Time) ([]records.Announcement, error)
	Grades(ctx context.Context, cutoff *time.Time) ([]records.Grade, error)
	Calendar(ctx context.Context, cutoff *time.Time) ([]records.CalendarEvent, error)
	Homework(ctx context.Context, cutoff *time.Time) ([]records.HomeworkItem, error)
	Remarks(ctx context.Context, cutoff *time.Time) ([]records.Remark, error)
}

// OpenFunc returns an authenticated page source for a canonical child name.
type OpenFunc func(ctx context.Context, child string) (PageSource, error)

// PortalOpener adapts a portal session provider.
func PortalOpener(p *librus.SessionProvider) OpenFunc {
	return func(ctx context.Context, child string) (PageSource, error) {
		sess, err := p.Open(ctx, child)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// Resolver maps a user-supplied name to a configured child.
type Resolver interface {
	Lookup(name string) (children.Child, error)
	List() []children.Child
}

// Config holds the collaborators of a collector.
type Config struct {
	Open     OpenFunc
	Children Resolver
	State    *state_manager.Manager
	Memory   *memory_service.Service
	Archive  archive.Store
	Reports  *report.Writer
	Tasks    *task_manager.Manager
	Metrics  *metrics.Metrics
	Logger   logger.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

// Collector runs collections. Runs for different children are independent;
// runs for the same child never overlap.
type Collector struct {
	cfg          Config
	childLocks   map[string]*sync.Mutex
	childLockMux sync.Mutex
	log          logger.Logger
	now          func() time.Time
}

// New creates a collector. Metrics may be nil.
func New(cfg Config) *Collector {
	switch {
	case cfg.Open == nil:
		panic("open func cannot be nil")
	case cfg.Children == nil:
		panic("children resolver cannot be nil")
	case cfg.State == nil, cfg.Memory == nil, cfg.Archive == nil, cfg.Reports == nil, cfg.Tasks == nil:
		panic("stores cannot be nil")
	case cfg.Logger == nil:
		panic("logger cannot be nil")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Collector{
		cfg:        cfg,
		childLocks: make(map[string]*sync.Mutex),
		log:        cfg.Logger,
		now:        now,
	}
}

// Result describes one finished run.
type Result struct {
	Child       string                      `json:"child"`
	RunID       string                      `json:"run_id"`
	Mode        state_manager.RunMode       `json:"mode"`
	Cutoff      *time.Time                  `json:"cutoff,omitempty"`
	CollectedAt time.Time                   `json:"collected_at"`
	Stats       records.Stats               `json:"stats"`
	Failed      map[records.Category]string `json:"failed_categories,omitempty"`
	Merge       memory_service.MergeStats   `json:"merge"`
	TasksAdded  int                         `json:"tasks_added"`
	ReportPath  string                      `json:"report_path"`
	Report      string                      `json:"-"`
	Records     records.Set                 `json:"-"`
}

// Run collects for one child. forceFull ignores the stored cutoff. A portal
// session that expired is returned as an error wrapping librus.ErrSessionExpired
// and nothing is written.
func (c *Collector) Run(ctx context.Context, name string, forceFull bool) (*Result, error) {
	child, err := c.cfg.Children.Lookup(name)
	if err != nil {
		return nil, err
	}

	lock := c.getChildLock(child.Name)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%s: %w", child.Name, ErrRunInProgress)
	}
	defer lock.Unlock()

	started := c.now()
	res, err := c.run(ctx, child.Name, forceFull, started)

	mode := string(state_manager.ModeFull)
	if res != nil {
		mode = string(res.Mode)
	}
	c.cfg.Metrics.ObserveRun(child.Name, mode, c.now().Sub(started), err)
	return res, err
}

func (c *Collector) run(ctx context.Context, child string, forceFull bool, started time.Time) (*Result, error) {
	stored, err := c.cfg.State.GetCutoff(ctx, child)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	res := &Result{
		Child:       child,
		RunID:       prefixed_uuid.New("run").String(),
		Mode:        state_manager.Mode(stored, forceFull),
		CollectedAt: started,
		Failed:      make(map[records.Category]string),
	}
	if res.Mode == state_manager.ModeDelta {
		cutoff := state_manager.EffectiveCutoff(*stored, delta.Location)
		res.Cutoff = &cutoff
	}
	log := c.log.WithFields(logger.ChildField(child), logger.ModeField(string(res.Mode)), logger.RunIDField(res.RunID))
	log.Info("Collection started")

	src, err := c.cfg.Open(ctx, child)
	if err != nil {
		return res, fmt.Errorf("failed to open portal session: %w", err)
	}

	raw, err := c.extract(ctx, src, res, log)
	if err != nil {
		return res, err
	}

	filtered := delta.FilterSet(raw, res.Cutoff, res.Mode == state_manager.ModeFull)
	res.Records = filtered.Set
	res.Stats = filtered.Stats()
	for _, cat := range records.Categories {
		c.cfg.Metrics.AddRecords(child, string(cat), filtered.Set.Count(cat))
		c.cfg.Metrics.AddUnparsedDates(child, string(cat), filtered.Unparsed[cat])
	}

	_, res.Merge, err = c.cfg.Memory.Merge(ctx, child, filtered.Set)
	if err != nil {
		return res, fmt.Errorf("failed to merge memory: %w", err)
	}

	local := started.In(delta.Location)
	snap := archive.Snapshot{
		ChildName:   child,
		CollectedAt: started,
		Mode:        string(res.Mode),
		Records:     raw,
		Stats:       records.StatsOf(raw),
	}
	if err := c.cfg.Archive.Put(ctx, child, local.Year(), local.Month(), snap); err != nil {
		return res, fmt.Errorf("failed to archive snapshot: %w", err)
	}

	res.Report = report.Render(report.Header{
		Child:       child,
		Mode:        string(res.Mode),
		CollectedAt: started,
		Cutoff:      res.Cutoff,
	}, filtered.Set)
	if res.ReportPath, err = c.cfg.Reports.Save(ctx, child, local, res.Report); err != nil {
		return res, err
	}

	if res.TasksAdded, err = c.cfg.Tasks.AddHomework(ctx, child, filtered.Set.Homework); err != nil {
		return res, fmt.Errorf("failed to derive tasks: %w", err)
	}

	if err := c.cfg.State.Advance(ctx, child, started); err != nil {
		return res, fmt.Errorf("failed to advance state: %w", err)
	}

	log.Info("Collection finished",
		logger.IntField("records", res.Stats.Total()),
		logger.IntField("unparsed_dates", res.Stats.Unparsed),
		logger.IntField("failed_categories", len(res.Failed)),
		logger.IntField("tasks_added", res.TasksAdded))
	return res, nil
}

// extract fetches every category. A failing category is logged and counted
// and contributes no records; an expired session or a cancelled context
// aborts the run.
func (c *Collector) extract(ctx context.Context, src PageSource, res *Result, log logger.Logger) (records.Set, error) {
	set := records.NewSet()
	step := categoryStep{ctx: ctx, res: res, log: log, metrics: c.cfg.Metrics}

	var err error
	if set.Messages, err = fetch(step, records.Messages, src.Messages); err != nil {
		return set, err
	}
	if set.Announcements, err = fetch(step, records.Announcements, src.Announcements); err != nil {
		return set, err
	}
	if set.Grades, err = fetch(step, records.Grades, src.Grades); err != nil {
		return set, err
	}
	if set.Calendar, err = fetch(step, records.Calendar, src.Calendar); err != nil {
		return set, err
	}
	if set.Homework, err = fetch(step, records.Homework, src.Homework); err != nil {
		return set, err
	}
	if set.Remarks, err = fetch(step, records.Remarks, src.Remarks); err != nil {
		return set, err
	}
	return set, nil
}

type categoryStep struct {
	ctx     context.Context
	res     *Result
	log     logger.Logger
	metrics *metrics.Metrics
}

func fetch[T any](step categoryStep, cat records.Category, fn func(context.Context, *time.Time) ([]T, error)) ([]T, error) {
	items, err := fn(step.ctx, step.res.Cutoff)
	if err == nil {
		if items == nil {
			items = []T{}
		}
		return items, nil
	}
	if errors.Is(err, librus.ErrSessionExpired) {
		return nil, err
	}
	if ctxErr := step.ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	step.log.Warn("Category extraction failed", logger.CategoryField(string(cat)), logger.ErrorField(err))
	step.res.Failed[cat] = err.Error()
	step.metrics.IncCategoryFailure(step.res.Child, string(cat))
	return []T{}, nil
}

// RunAll runs a collection for every configured child, one after another.
// Failures are collected; one child failing does not stop the others.
func (c *Collector) RunAll(ctx context.Context, forceFull bool) ([]*Result, error) {
	var (
		results []*Result
		errs    *multierror.Error
	)
	for _, child := range c.cfg.Children.List() {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		res, err := c.Run(ctx, child.Name, forceFull)
		if err != nil {
			c.log.Error("Collection failed", logger.ChildField(child.Name), logger.ErrorField(err))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", child.Name, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs.ErrorOrNil()
}

func (c *Collector) getChildLock(child string) *sync.Mutex {
	c.childLockMux.Lock()
	defer c.childLockMux.Unlock()

	key := children.SafeName(child)
	lock, ok := c.childLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.childLocks[key] = lock
	}
	return lock
}
