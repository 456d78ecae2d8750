package query

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/archive"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/internal/task_manager"
	"github.com/lewisedginton/librus_mcp/internal/trend"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestHomeworkDue(t *testing.T) {
	items := []records.HomeworkItem{
		{Title: "last day", DateDue: "2026-01-21"},
		{Title: "yesterday", DateDue: "2026-01-14"},
		{Title: "today", DateDue: "2026-01-15"},
		{Title: "too far", DateDue: "2026-01-22"},
		{Title: "no date", DateDue: ""},
	}

	got := HomeworkDue(items, now, 7)
	require.Len(t, got, 2)
	assert.Equal(t, "today", got[0].Title)
	assert.Equal(t, "last day", got[1].Title)

	assert.Len(t, HomeworkDue(items, now, 0), 2, "non-positive days fall back to the default")
	assert.NotNil(t, HomeworkDue(nil, now, 7))
}

func TestUpcomingEvents(t *testing.T) {
	events := []records.CalendarEvent{
		{Title: "Trip", Date: "2026-01-20"},
		{Title: "Test", Date: "2026-01-16"},
		{Title: "Past", Date: "2026-01-10"},
		{Title: "Next week", Date: "2026-01-22"},
	}
	got := UpcomingEvents(events, now, 7)
	require.Len(t, got, 2)
	assert.Equal(t, "Test", got[0].Title)
}

func TestUnreadMessages(t *testing.T) {
	got := UnreadMessages([]records.Message{{Title: "a", IsRead: true}, {Title: "b"}})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Title)
}

func TestAverages(t *testing.T) {
	history := map[string][]memory_service.GradeEntry{
		"Matematyka": {{Grade: "5", Weight: "3"}, {Grade: "3", Weight: "1"}},
		"Fizyka":     {{Grade: "4+", Weight: ""}, {Grade: "np", Weight: "2"}},
		"WF":         {{Grade: "zw"}},
	}

	got := Averages(history)
	require.Len(t, got, 2)
	assert.Equal(t, "Fizyka", got[0].Subject)
	assert.InDelta(t, 4.5, got[0].Value, 1e-9)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, "Matematyka", got[1].Subject)
	assert.InDelta(t, 4.5, got[1].Value, 1e-9)
}

func newTestService(t *testing.T) (*Service, archive.Store, *memory_service.Service, *task_manager.Manager) {
	t.Helper()
	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	store := archive.NewFileStore(provider)
	mem := memory_service.New(memory_service.Config{FileProvider: provider, Logger: log})
	tasks := task_manager.New(task_manager.Config{FileProvider: provider, Logger: log})
	return New(Config{Archive: store, Memory: mem, Tasks: tasks}), store, mem, tasks
}

func TestServiceHomework(t *testing.T) {
	svc, store, _, tasks := newTestService(t)
	ctx := context.Background()

	dec := records.NewSet()
	dec.Homework = []records.HomeworkItem{{Subject: "Polski", Title: "Lektura", DateDue: "2026-01-19"}}
	jan := records.NewSet()
	jan.Homework = []records.HomeworkItem{
		{Subject: "Polski", Title: "Lektura", DateDue: "2026-01-19"},
		{Subject: "Fizyka", Title: "Zadania", DateDue: "2026-01-16"},
	}
	jan.Messages = []records.Message{{Title: "Zebranie", IsRead: false}}
	require.NoError(t, store.Put(ctx, "Jakub", 2025, time.December, archive.Snapshot{Records: dec}))
	require.NoError(t, store.Put(ctx, "Jakub", 2026, time.January, archive.Snapshot{Records: jan}))
	_, err := tasks.AddHomework(ctx, "Jakub", jan.Homework)
	require.NoError(t, err)

	sum, err := svc.Homework(ctx, "Jakub", now)
	require.NoError(t, err)
	require.Len(t, sum.Due, 2)
	assert.Equal(t, "Zadania", sum.Due[0].Title)
	assert.Len(t, sum.Unread, 1)
	assert.Equal(t, 2, sum.Pending)
	assert.Equal(t, DefaultHomeworkDays, sum.Days)
}

func TestServiceTrends(t *testing.T) {
	svc, _, mem, _ := newTestService(t)
	ctx := context.Background()

	set := records.NewSet()
	set.Grades = []records.Grade{
		{Subject: "Matematyka", Grade: "5", Date: "2026-01-01"},
		{Subject: "Matematyka", Grade: "4", Date: "2026-01-02"},
		{Subject: "Matematyka", Grade: "2", Date: "2026-01-03"},
		{Subject: "Biologia", Grade: "4", Date: "2026-01-03"},
	}
	_, _, err := mem.Merge(ctx, "Jakub", set)
	require.NoError(t, err)

	trends, err := svc.Trends(ctx, "Jakub")
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "Biologia", trends[0].Subject)
	assert.Equal(t, trend.Direction(""), trends[0].Direction)
	assert.Equal(t, trend.Decline, trends[1].Direction)
	require.NotNil(t, trends[1].Average)

	out := FormatTrends("Jakub", trends)
	assert.Contains(t, out, "- Matematyka: DECLINE (5, 4, 2), average 3.67")
	assert.Contains(t, out, "- Biologia: NOT ENOUGH DATA, average 4.00")
	assert.Less(t, strings.Index(out, "Matematyka"), strings.Index(out, "Biologia"))
}

func TestFormatHomework(t *testing.T) {
	out := FormatHomework(&HomeworkSummary{
		Child:   "Jakub",
		Days:    7,
		Due:     []records.HomeworkItem{{Subject: "Polski", Title: "Wypracowanie", DateDue: "2026-01-17"}},
		Events:  []records.CalendarEvent{{Date: "2026-01-14", Title: "Sprawdzian", Subject: "Matematyka"}},
		Pending: 2,
	})
	assert.Contains(t, out, "# Homework summary: Jakub")
	assert.Contains(t, out, "## Due in the next 7 days (1)")
	assert.Contains(t, out, "- 2026-01-17, Polski: Wypracowanie")
	assert.Contains(t, out, "- 2026-01-14: Sprawdzian (Matematyka)")
	assert.Contains(t, out, "## Unread messages (0)\nNone.")
	assert.Contains(t, out, "Pending tasks: 2")
}
