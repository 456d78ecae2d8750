// Package query builds the read-side views served to the assistant: homework
// due soon, unread messages, upcoming events, grade averages and trends.
package query

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/archive"
	"github.com/lewisedginton/librus_mcp/internal/delta"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/task_manager"
	"github.com/lewisedginton/librus_mcp/internal/trend"
)

// DefaultHomeworkDays is the look-ahead window for homework and events.
const DefaultHomeworkDays = 7

// recentMonths is how many archive months the views combine.
const recentMonths = 2

// HomeworkDue returns items due in the days calendar days starting today,
// soonest first. Items with an unparseable due date are left out.
func HomeworkDue(items []records.HomeworkItem, now time.Time, days int) []records.HomeworkItem {
	from, to := window(now, days)
	out := []records.HomeworkItem{}
	for _, h := range items {
		due, ok := delta.ParseDate(h.DateDue)
		if !ok || due.Before(from) || !due.Before(to) {
			continue
		}
		out = append(out, h)
	}
	slices.SortStableFunc(out, func(a, b records.HomeworkItem) int {
		return strings.Compare(a.DateDue, b.DateDue)
	})
	return out
}

// UpcomingEvents returns calendar events in the days calendar days starting today.
func UpcomingEvents(events []records.CalendarEvent, now time.Time, days int) []records.CalendarEvent {
	from, to := window(now, days)
	out := []records.CalendarEvent{}
	for _, e := range events {
		at, ok := delta.ParseDate(e.Date)
		if !ok || at.Before(from) || !at.Before(to) {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b records.CalendarEvent) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out
}

// UnreadMessages returns the messages not yet read.
func UnreadMessages(msgs []records.Message) []records.Message {
	out := []records.Message{}
	for _, m := range msgs {
		if !m.IsRead {
			out = append(out, m)
		}
	}
	return out
}

// window is [start of today, start of today+days) in the portal zone.
func window(now time.Time, days int) (time.Time, time.Time) {
	if days <= 0 {
		days = DefaultHomeworkDays
	}
	local := now.In(delta.Location)
	y, m, d := local.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, delta.Location)
	return from, from.AddDate(0, 0, days)
}

// Average is the weighted mean of one subject's numeric grades.
type Average struct {
	Subject string  `json:"subject"`
	Value   float64 `json:"average"`
	Count   int     `json:"count"`
}

// weight parses a grade weight, defaulting to 1 when missing or invalid.
func weight(s string) float64 {
	w, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil || w <= 0 {
		return 1
	}
	return w
}

// Averages computes weighted averages per subject, sorted by subject.
// Subjects with no numeric grade are left out.
func Averages(history map[string][]memory_service.GradeEntry) []Average {
	out := []Average{}
	for subject, entries := range history {
		var sum, total float64
		count := 0
		for _, e := range entries {
			v, ok := trend.Numeric(e.Grade)
			if !ok {
				continue
			}
			w := weight(e.Weight)
			sum += v * w
			total += w
			count++
		}
		if count == 0 {
			continue
		}
		out = append(out, Average{Subject: subject, Value: sum / total, Count: count})
	}
	slices.SortFunc(out, func(a, b Average) int { return strings.Compare(a.Subject, b.Subject) })
	return out
}

// SubjectTrend pairs a subject's trend with its average.
type SubjectTrend struct {
	Subject   string          `json:"subject"`
	Direction trend.Direction `json:"direction"`
	Recent    []string        `json:"recent"`
	Average   *float64        `json:"average,omitempty"`
	Count     int             `json:"grades"`
}

// Service reads the stores behind the views.
type Service struct {
	archive      archive.Store
	memory       *memory_service.Service
	tasks        *task_manager.Manager
	homeworkDays int
}

// Config holds configuration for the query service.
type Config struct {
	Archive      archive.Store
	Memory       *memory_service.Service
	Tasks        *task_manager.Manager
	HomeworkDays int
}

// New creates a query service.
func New(cfg Config) *Service {
	if cfg.Archive == nil || cfg.Memory == nil || cfg.Tasks == nil {
		panic("query service needs archive, memory and tasks")
	}
	if cfg.HomeworkDays <= 0 {
		cfg.HomeworkDays = DefaultHomeworkDays
	}
	return &Service{archive: cfg.Archive, memory: cfg.Memory, tasks: cfg.Tasks, homeworkDays: cfg.HomeworkDays}
}

// HomeworkDays is the configured look-ahead window.
func (s *Service) HomeworkDays() int {
	return s.homeworkDays
}

// recentSet combines the snapshots of the last months, newest first,
// dropping records repeated across months.
func (s *Service) recentSet(ctx context.Context, child string, now time.Time) (records.Set, error) {
	snaps, err := archive.GetRecent(ctx, s.archive, child, recentMonths, now)
	if err != nil {
		return records.Set{}, err
	}
	set := records.NewSet()
	seenHomework := make(map[string]struct{})
	seenMessages := make(map[string]struct{})
	seenEvents := make(map[string]struct{})
	for _, snap := range snaps {
		for _, h := range snap.Records.Homework {
			if _, ok := seenHomework[h.SourceKey()]; ok {
				continue
			}
			seenHomework[h.SourceKey()] = struct{}{}
			set.Homework = append(set.Homework, h)
		}
		for _, m := range snap.Records.Messages {
			key := m.Sender + "|" + m.Title + "|" + m.Date
			if _, ok := seenMessages[key]; ok {
				continue
			}
			seenMessages[key] = struct{}{}
			set.Messages = append(set.Messages, m)
		}
		for _, e := range snap.Records.Calendar {
			key := e.Date + "|" + e.Title + "|" + e.Subject
			if _, ok := seenEvents[key]; ok {
				continue
			}
			seenEvents[key] = struct{}{}
			set.Calendar = append(set.Calendar, e)
		}
	}
	return set, nil
}

// HomeworkSummary is the get_homework_summary view.
type HomeworkSummary struct {
	Child   string                  `json:"child"`
	Days    int                     `json:"days"`
	Due     []records.HomeworkItem  `json:"due"`
	Unread  []records.Message       `json:"unread_messages"`
	Events  []records.CalendarEvent `json:"upcoming_events"`
	Pending int                     `json:"pending_tasks"`
}

// Homework builds the homework summary of a child as of now.
func (s *Service) Homework(ctx context.Context, child string, now time.Time) (*HomeworkSummary, error) {
	set, err := s.recentSet(ctx, child, now)
	if err != nil {
		return nil, err
	}
	pending, err := s.tasks.Pending(ctx, child)
	if err != nil {
		return nil, err
	}
	return &HomeworkSummary{
		Child:   child,
		Days:    s.homeworkDays,
		Due:     HomeworkDue(set.Homework, now, s.homeworkDays),
		Unread:  UnreadMessages(set.Messages),
		Events:  UpcomingEvents(set.Calendar, now, s.homeworkDays),
		Pending: len(pending),
	}, nil
}

// Trends returns every subject with a trend or a numeric average.
func (s *Service) Trends(ctx context.Context, child string) ([]SubjectTrend, error) {
	mem, err := s.memory.Get(ctx, child)
	if err != nil {
		return nil, err
	}
	avgs := make(map[string]Average)
	for _, a := range Averages(mem.GradeHistory) {
		avgs[a.Subject] = a
	}

	out := []SubjectTrend{}
	for subject := range mem.GradeHistory {
		st := SubjectTrend{Subject: subject, Count: len(mem.GradeHistory[subject])}
		if t, ok := mem.Trends[subject]; ok {
			st.Direction = t.Direction
			st.Recent = t.Recent
		}
		if a, ok := avgs[subject]; ok {
			v := a.Value
			st.Average = &v
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b SubjectTrend) int { return strings.Compare(a.Subject, b.Subject) })
	return out, nil
}

// FormatTrends renders trends as markdown, declining subjects first.
func FormatTrends(child string, trends []SubjectTrend) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Grade trends: %s\n\n", child)
	if len(trends) == 0 {
		b.WriteString("No grades recorded yet.\n")
		return b.String()
	}
	order := []trend.Direction{trend.Decline, trend.Stable, trend.Improving, ""}
	for _, dir := range order {
		for _, t := range trends {
			if t.Direction != dir {
				continue
			}
			label := string(t.Direction)
			if label == "" {
				label = "NOT ENOUGH DATA"
			}
			line := fmt.Sprintf("- %s: %s", t.Subject, label)
			if len(t.Recent) > 0 {
				line += " (" + strings.Join(t.Recent, ", ") + ")"
			}
			if t.Average != nil {
				line += fmt.Sprintf(", average %.2f", *t.Average)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// FormatHomework renders a homework summary as markdown.
func FormatHomework(s *HomeworkSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Homework summary: %s\n\n", s.Child)

	fmt.Fprintf(&b, "## Due in the next %d days (%d)\n", s.Days, len(s.Due))
	if len(s.Due) == 0 {
		b.WriteString("Nothing due.\n")
	}
	for _, h := range s.Due {
		fmt.Fprintf(&b, "- %s, %s: %s\n", h.DateDue, h.Subject, h.Title)
	}

	fmt.Fprintf(&b, "\n## Upcoming events (%d)\n", len(s.Events))
	if len(s.Events) == 0 {
		b.WriteString("None.\n")
	}
	for _, e := range s.Events {
		line := fmt.Sprintf("- %s: %s", e.Date, e.Title)
		if e.Subject != "" {
			line += " (" + e.Subject + ")"
		}
		b.WriteString(line + "\n")
	}

	fmt.Fprintf(&b, "\n## Unread messages (%d)\n", len(s.Unread))
	if len(s.Unread) == 0 {
		b.WriteString("None.\n")
	}
	for _, m := range s.Unread {
		fmt.Fprintf(&b, "- %s, %s: %s\n", m.Date, m.Sender, m.Title)
	}

	fmt.Fprintf(&b, "\nPending tasks: %d\n", s.Pending)
	return b.String()
}
