package mcp_server //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lewisedginton/librus_mcp/internal/analysis"
	"github.com/lewisedginton/librus_mcp/internal/archive"
	"github.com/lewisedginton/librus_mcp/internal/librus"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultMonthsBack = 2
	maxMonthsBack     = 12
)

type childInput struct {
	Child string `json:"child" jsonschema:"child name or alias"`
}

type scrapeInput struct {
	Child string `json:"child" jsonschema:"child name or alias"`
	Full  bool   `json:"full,omitempty" jsonschema:"ignore the last scrape and collect everything"`
}

type saveNoteInput struct {
	Child   string `json:"child" jsonschema:"child name or alias"`
	Kind    string `json:"kind" jsonschema:"issue, action_item or parent_note"`
	Content string `json:"content" jsonschema:"note text"`
}

type recentDataInput struct {
	Child      string `json:"child" jsonschema:"child name or alias"`
	MonthsBack int    `json:"months_back,omitempty" jsonschema:"number of months to include, counting the current one (default 2)"`
}

type markTaskDoneInput struct {
	Child  string `json:"child" jsonschema:"child name or alias"`
	TaskID string `json:"task_id" jsonschema:"task id as listed by get_pending_tasks"`
	Notes  string `json:"notes,omitempty" jsonschema:"optional completion notes"`
}

type saveAnalysisInput struct {
	Child string `json:"child" jsonschema:"child name or alias"`
	Text  string `json:"text" jsonschema:"analysis as a JSON object or free text"`
}

func (s *Server) registerTools() {
	read := s.cfg.ToolTimeout

	addTool(s, s.cfg.ScrapeTimeout, &mcp.Tool{
		Name:        "scrape",
		Description: "Collect new data from the Librus portal for a child. The first run, or full=true, collects everything; later runs only what is new since the last one.",
	}, s.scrape)
	addTool(s, read, &mcp.Tool{
		Name:        "get_memory",
		Description: "Show a child's memory: grade trends, the latest issues, action items and parent notes, and recent grades per subject.",
	}, s.getMemory)
	addTool(s, read, &mcp.Tool{
		Name:        "save_note",
		Description: "Save an issue, action item or parent note in a child's memory. Action items also become pending tasks.",
	}, s.saveNote)
	addTool(s, read, &mcp.Tool{
		Name:        "list_entities",
		Description: "List configured children with their aliases, last scrape time and setup status.",
	}, s.listEntities)
	addTool(s, read, &mcp.Tool{
		Name:        "get_recent_data",
		Description: "Return the archived monthly snapshots of a child as JSON, newest first.",
	}, s.getRecentData)
	addTool(s, read, &mcp.Tool{
		Name:        "analyze_grade_trends",
		Description: "Show the grade trend and weighted average of every subject, declining subjects first.",
	}, s.analyzeGradeTrends)
	addTool(s, read, &mcp.Tool{
		Name:        "get_homework_summary",
		Description: "Summarise homework due soon, upcoming calendar events and unread messages for a child.",
	}, s.getHomeworkSummary)
	addTool(s, read, &mcp.Tool{
		Name:        "get_pending_tasks",
		Description: "List a child's pending tasks derived from homework and action items.",
	}, s.getPendingTasks)
	addTool(s, read, &mcp.Tool{
		Name:        "mark_task_done",
		Description: "Mark a pending task as completed, with optional notes.",
	}, s.markTaskDone)
	addTool(s, read, &mcp.Tool{
		Name:        "get_analysis_summary",
		Description: "Return the last saved analysis summary of a child.",
	}, s.getAnalysisSummary)
	addTool(s, read, &mcp.Tool{
		Name:        "save_analysis_summary",
		Description: "Save an analysis summary for a child. JSON objects are stored as given; free text is wrapped with a timestamp.",
	}, s.saveAnalysisSummary)
}

func (s *Server) scrape(ctx context.Context, in scrapeInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	res, err := s.cfg.Scraper.Run(ctx, child, in.Full)
	if err != nil {
		if errors.Is(err, librus.ErrSessionExpired) {
			return "", fmt.Errorf("portal session for %s is not valid, run `librus-mcp login %s` and try again: %w", child, child, err)
		}
		return "", err
	}
	return formatScrape(res), nil
}

func (s *Server) getMemory(ctx context.Context, in childInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	mem, err := s.cfg.Memory.Get(ctx, child)
	if err != nil {
		return "", err
	}
	return memory_service.Format(mem), nil
}

func (s *Server) saveNote(ctx context.Context, in saveNoteInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	kind, err := memory_service.ParseNoteKind(strings.TrimSpace(in.Kind))
	if err != nil {
		return "", err
	}
	if _, err := s.cfg.Memory.AddNote(ctx, child, kind, in.Content); err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Saved %s for %s.", kind, child)
	if kind == memory_service.KindActionItem {
		task, created, err := s.cfg.Tasks.AddActionItem(ctx, child, in.Content)
		if err != nil {
			return "", fmt.Errorf("note saved but task creation failed: %w", err)
		}
		if created {
			msg += fmt.Sprintf(" Created task %s.", task.ID)
		}
	}
	return msg, nil
}

func (s *Server) listEntities(ctx context.Context, _ struct{}) (string, error) {
	var b strings.Builder
	b.WriteString("# Children\n\n")
	for _, child := range s.cfg.Children.List() {
		st, err := s.cfg.State.Get(ctx, child.Name)
		if err != nil {
			return "", err
		}
		line := "- " + child.Name
		if len(child.Aliases) > 0 {
			line += " (aliases: " + strings.Join(child.Aliases, ", ") + ")"
		}
		last := "never"
		if st.LastScrape != nil {
			last = st.LastScrape.Format("2006-01-02 15:04")
		}
		setup := "no"
		if st.SetupCompleted {
			setup = "yes"
		}
		fmt.Fprintf(&b, "%s, last scrape: %s, setup completed: %s\n", line, last, setup)
	}
	return b.String(), nil
}

func (s *Server) getRecentData(ctx context.Context, in recentDataInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	months := in.MonthsBack
	if months <= 0 {
		months = defaultMonthsBack
	}
	if months > maxMonthsBack {
		months = maxMonthsBack
	}

	snaps, err := archive.GetRecent(ctx, s.cfg.Archive, child, months, s.now())
	if err != nil {
		return "", err
	}
	if len(snaps) == 0 {
		return fmt.Sprintf("No archived data for %s in the last %d months.", child, months), nil
	}
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Server) analyzeGradeTrends(ctx context.Context, in childInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	trends, err := s.cfg.Query.Trends(ctx, child)
	if err != nil {
		return "", err
	}
	return query.FormatTrends(child, trends), nil
}

func (s *Server) getHomeworkSummary(ctx context.Context, in childInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	summary, err := s.cfg.Query.Homework(ctx, child, s.now())
	if err != nil {
		return "", err
	}
	return query.FormatHomework(summary), nil
}

func (s *Server) getPendingTasks(ctx context.Context, in childInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	tasks, err := s.cfg.Tasks.Pending(ctx, child)
	if err != nil {
		return "", err
	}
	return formatTasks(child, tasks), nil
}

func (s *Server) markTaskDone(ctx context.Context, in markTaskDoneInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	task, err := s.cfg.Tasks.MarkDone(ctx, child, in.TaskID, in.Notes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Marked %q as done.", task.Title), nil
}

func (s *Server) getAnalysisSummary(ctx context.Context, in childInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	raw, err := s.cfg.Analysis.Get(ctx, child)
	if errors.Is(err, analysis.ErrNoSummary) {
		return fmt.Sprintf("No analysis saved for %s yet.", child), nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *Server) saveAnalysisSummary(ctx context.Context, in saveAnalysisInput) (string, error) {
	child, err := s.resolve(in.Child)
	if err != nil {
		return "", err
	}
	if _, err := s.cfg.Analysis.Save(ctx, child, in.Text); err != nil {
		return "", err
	}
	return fmt.Sprintf("Analysis saved for %s.", child), nil
}
