// Package scheduler runs periodic collections for every configured child.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/collector"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	rcron "github.com/robfig/cron/v3"
)

// Runner collects for all children.
type Runner interface {
	RunAll(ctx context.Context, forceFull bool) ([]*collector.Result, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// Spec is a cron expression with a leading seconds field, or a descriptor such as "@every 6h"
	Spec       string
	ForceFull  bool
	RunTimeout time.Duration
	Runner     Runner
	Logger     logger.Logger
}

// Scheduler triggers Runner.RunAll on a cron schedule. A tick that fires while
// the previous one is still running is skipped.
type Scheduler struct {
	cfg    Config
	cron   *rcron.Cron
	log    logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New validates the schedule and builds a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		panic("runner cannot be nil")
	}
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}

	s := &Scheduler{cfg: cfg, log: cfg.Logger.WithFields(logger.StringField("component", "scheduler"))}
	s.cron = rcron.New(
		rcron.WithSeconds(),
		rcron.WithChain(rcron.Recover(cronLogger{s.log}), rcron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start runs the schedule until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("Scheduler started", logger.StringField("spec", s.cfg.Spec), logger.TimeField("next", s.Next()))

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
}

// Stop stops the schedule and waits for a running collection to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("Timed out waiting for running collection")
	}
	s.log.Info("Scheduler stopped")
}

// Next returns the next activation time.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if entries[0].Next.IsZero() {
		return entries[0].Schedule.Next(time.Now())
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	s.run(parent)
}

func (s *Scheduler) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	results, err := s.cfg.Runner.RunAll(ctx, s.cfg.ForceFull)
	fields := []logger.LogField{
		logger.IntField("succeeded", len(results)),
		logger.DurationField("duration", time.Since(start)),
	}
	if err != nil {
		s.log.Error("Scheduled collection finished with errors", append(fields, logger.ErrorField(err))...)
		return
	}
	s.log.Info("Scheduled collection finished", fields...)
}

// cronLogger adapts logger.Logger to the cron job wrappers.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), logger.ErrorField(err))...)
}

func kvFields(kv []interface{}) []logger.LogField {
	fields := make([]logger.LogField, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.StringField(fmt.Sprint(kv[i]), fmt.Sprint(kv[i+1])))
	}
	return fields
}
