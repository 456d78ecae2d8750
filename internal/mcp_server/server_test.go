package mcp_server //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/analysis"
	"github.com/lewisedginton/librus_mcp/internal/archive"
	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/collector"
	"github.com/lewisedginton/librus_mcp/internal/librus"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/query"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/state_manager"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/internal/task_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	calls []string
	full  []bool
	err   error
}

func (f *fakeScraper) Run(_ context.Context, name string, forceFull bool) (*collector.Result, error) {
	f.calls = append(f.calls, name)
	f.full = append(f.full, forceFull)
	if f.err != nil {
		return nil, f.err
	}
	return &collector.Result{
		Child:  name,
		RunID:  "run-test",
		Mode:   state_manager.ModeDelta,
		Stats:  records.Stats{Grades: 2, Messages: 1},
		Failed: map[records.Category]string{records.Remarks: "timeout"},
		Merge:  memory_service.MergeStats{Added: 2, Duplicates: 1},
		Report: "# Librus report: " + name + "\n",
	}, nil
}

type testEnv struct {
	session *mcp.ClientSession
	scraper *fakeScraper
	archive archive.Store
	tasks   *task_manager.Manager
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	resolver, err := children.NewResolver([]children.Child{
		{Name: "Jakub", Aliases: []string{"Kuba"}},
		{Name: "Anna"},
	})
	require.NoError(t, err)

	env := &testEnv{scraper: &fakeScraper{}, now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	memory := memory_service.New(memory_service.Config{FileProvider: provider, Logger: log, Now: clock})
	env.archive = archive.NewFileStore(provider)
	env.tasks = task_manager.New(task_manager.Config{FileProvider: provider, Logger: log, Now: clock})
	srv := New(Config{
		Children: resolver,
		Scraper:  env.scraper,
		State:    state_manager.New(state_manager.Config{FileProvider: provider, Logger: log}),
		Memory:   memory,
		Archive:  env.archive,
		Tasks:    env.tasks,
		Query:    query.New(query.Config{Archive: env.archive, Memory: memory, Tasks: env.tasks}),
		Analysis: analysis.NewStore(provider, clock),
		Logger:   log,
		Now:      clock,
	})

	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()
	ss, err := srv.MCP().Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	env.session, err = client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.session.Close() })
	return env
}

// call invokes a tool and returns its text and error flag.
func (e *testEnv) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := e.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text, res.IsError
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"scrape", "get_memory", "save_note", "list_entities", "get_recent_data",
		"analyze_grade_trends", "get_homework_summary", "get_pending_tasks",
		"mark_task_done", "get_analysis_summary", "save_analysis_summary",
	}, names)
}

func TestScrapeTool(t *testing.T) {
	env := newTestEnv(t)

	text, isErr := env.call(t, "scrape", map[string]any{"child": "kuba", "full": true})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"Jakub"}, env.scraper.calls, "aliases resolve before scraping")
	assert.Equal(t, []bool{true}, env.scraper.full)
	assert.Contains(t, text, "# Librus report: Jakub")
	assert.Contains(t, text, "3 new records")
	assert.Contains(t, text, "1 duplicates skipped")
	assert.Contains(t, text, "Failed categories: remarks (timeout)")
}

func TestScrapeSessionExpired(t *testing.T) {
	env := newTestEnv(t)
	env.scraper.err = fmt.Errorf("grades: %w", librus.ErrSessionExpired)

	text, isErr := env.call(t, "scrape", map[string]any{"child": "Jakub"})
	assert.True(t, isErr)
	assert.Contains(t, text, "librus-mcp login Jakub")
}

func TestUnknownChild(t *testing.T) {
	env := newTestEnv(t)
	text, isErr := env.call(t, "get_memory", map[string]any{"child": "Zosia"})
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown child")
	assert.Empty(t, env.scraper.calls)
}

func TestNotesAndTasks(t *testing.T) {
	env := newTestEnv(t)

	text, isErr := env.call(t, "save_note", map[string]any{"child": "Jakub", "kind": "action_item", "content": "Podpisać zgodę"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Created task")

	text, isErr = env.call(t, "save_note", map[string]any{"child": "Jakub", "kind": "gossip", "content": "x"})
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown note kind")

	text, _ = env.call(t, "get_memory", map[string]any{"child": "Jakub"})
	assert.Contains(t, text, "Podpisać zgodę")

	text, _ = env.call(t, "get_pending_tasks", map[string]any{"child": "Jakub"})
	assert.Contains(t, text, "Pending tasks for Jakub (1)")
	assert.Contains(t, text, "Podpisać zgodę")

	pending, err := env.tasks.Pending(context.Background(), "Jakub")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	text, isErr = env.call(t, "mark_task_done", map[string]any{"child": "Jakub", "task_id": pending[0].ID.String(), "notes": "done"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Marked")

	text, _ = env.call(t, "get_pending_tasks", map[string]any{"child": "Jakub"})
	assert.Equal(t, "No pending tasks for Jakub.", text)

	_, isErr = env.call(t, "mark_task_done", map[string]any{"child": "Jakub", "task_id": pending[0].ID.String()})
	assert.True(t, isErr, "a completed task is no longer pending")
}

func TestRecentData(t *testing.T) {
	env := newTestEnv(t)

	text, isErr := env.call(t, "get_recent_data", map[string]any{"child": "Anna"})
	require.False(t, isErr)
	assert.Equal(t, "No archived data for Anna in the last 2 months.", text)

	set := records.NewSet()
	set.Grades = []records.Grade{{Subject: "Fizyka", Grade: "5", Date: "2026-01-14"}}
	require.NoError(t, env.archive.Put(context.Background(), "Anna", 2026, time.January, archive.Snapshot{
		ChildName:   "Anna",
		CollectedAt: env.now,
		Mode:        string(state_manager.ModeFull),
		Records:     set,
		Stats:       records.StatsOf(set),
	}))

	text, isErr = env.call(t, "get_recent_data", map[string]any{"child": "anna", "months_back": 40})
	require.False(t, isErr, text)
	assert.True(t, strings.HasPrefix(text, "["), "snapshots are a JSON array")
	assert.Contains(t, text, `"Fizyka"`)
}

func TestAnalysisSummary(t *testing.T) {
	env := newTestEnv(t)

	text, isErr := env.call(t, "get_analysis_summary", map[string]any{"child": "Jakub"})
	require.False(t, isErr)
	assert.Equal(t, "No analysis saved for Jakub yet.", text)

	_, isErr = env.call(t, "save_analysis_summary", map[string]any{"child": "Jakub", "text": `{"analysis":"ok","concerns":["fizyka"]}`})
	require.False(t, isErr)

	text, _ = env.call(t, "get_analysis_summary", map[string]any{"child": "Jakub"})
	assert.JSONEq(t, `{"analysis":"ok","concerns":["fizyka"]}`, text)

	text, isErr = env.call(t, "save_analysis_summary", map[string]any{"child": "Jakub", "text": "  "})
	assert.True(t, isErr)
	assert.Contains(t, text, "cannot be empty")
}

func TestListEntities(t *testing.T) {
	env := newTestEnv(t)
	text, isErr := env.call(t, "list_entities", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "- Jakub (aliases: Kuba), last scrape: never, setup completed: no")
	assert.Contains(t, text, "- Anna, last scrape: never")
}

func TestTrendsAndHomeworkTools(t *testing.T) {
	env := newTestEnv(t)

	text, isErr := env.call(t, "analyze_grade_trends", map[string]any{"child": "Jakub"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "# Grade trends: Jakub")

	text, isErr = env.call(t, "get_homework_summary", map[string]any{"child": "Jakub"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Nothing due.")
}

func TestFormatTasksOrdersByDueDate(t *testing.T) {
	out := formatTasks("Jakub", []task_manager.Task{
		{Title: "bez terminu", Source: task_manager.SourceActionItem},
		{Title: "później", DueDate: "2026-02-01", Source: task_manager.SourceHomework},
		{Title: "wcześniej", DueDate: "2026-01-20", Source: task_manager.SourceHomework},
	})
	first := strings.Index(out, "wcześniej")
	second := strings.Index(out, "później")
	third := strings.Index(out, "bez terminu")
	assert.True(t, first < second && second < third, out)
}
