// Package report renders collected records as markdown and keeps the latest
// report next to a timestamped history.
package report

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
)

const (
	latestFile    = "latest.md"
	historyDir    = "history"
	historyLayout = "2006-01-02_15-04-05"
)

// Header describes the run a report was produced by.
type Header struct {
	Child       string
	Mode        string
	CollectedAt time.Time
	Cutoff      *time.Time
}

// Render builds the markdown report of one run.
func Render(h Header, set records.Set) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Librus report: %s\n\n", h.Child)
	fmt.Fprintf(&b, "- Collected: %s\n", h.CollectedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Mode: %s\n", h.Mode)
	if h.Cutoff != nil {
		fmt.Fprintf(&b, "- New since: %s\n", h.Cutoff.Format("2006-01-02 15:04:05"))
	}

	b.WriteString("\n## Summary\n\n")
	for _, c := range records.Categories {
		fmt.Fprintf(&b, "- %s: %d\n", c, set.Count(c))
	}

	section(&b, "Messages", len(set.Messages), func() {
		for _, m := range set.Messages {
			status := "read"
			if !m.IsRead {
				status = "unread"
			}
			fmt.Fprintf(&b, "### %s\n\n%s | %s | %s\n\n", m.Title, m.Sender, m.Date, status)
			if m.Content != "" {
				fmt.Fprintf(&b, "%s\n\n", m.Content)
			}
			if len(m.Attachments) > 0 {
				fmt.Fprintf(&b, "Attachments: %s\n\n", strings.Join(m.Attachments, ", "))
			}
		}
	})
	section(&b, "Announcements", len(set.Announcements), func() {
		for _, a := range set.Announcements {
			fmt.Fprintf(&b, "### %s\n\n%s | %s\n\n%s\n\n", a.Title, a.Author, a.Date, a.Content)
		}
	})
	section(&b, "Grades", len(set.Grades), func() {
		b.WriteString("| Subject | Grade | Date | Category | Weight | Teacher |\n|---|---|---|---|---|---|\n")
		for _, g := range set.Grades {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n", g.Subject, g.Grade, g.Date, g.Category, g.Weight, g.Teacher)
		}
		b.WriteString("\n")
	})
	section(&b, "Calendar", len(set.Calendar), func() {
		for _, e := range set.Calendar {
			line := "- " + e.Date + ": " + e.Title
			if e.Subject != "" {
				line += " (" + e.Subject + ")"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	})
	section(&b, "Homework", len(set.Homework), func() {
		for _, h := range set.Homework {
			fmt.Fprintf(&b, "- %s: %s (due %s, added %s)\n", h.Subject, h.Title, h.DateDue, h.DateAdded)
		}
		b.WriteString("\n")
	})
	section(&b, "Remarks", len(set.Remarks), func() {
		for _, r := range set.Remarks {
			fmt.Fprintf(&b, "- %s, %s: %s\n", r.Date, r.Teacher, r.Content)
		}
		b.WriteString("\n")
	})
	return b.String()
}

func section(b *strings.Builder, title string, n int, body func()) {
	fmt.Fprintf(b, "\n## %s (%d)\n\n", title, n)
	if n == 0 {
		b.WriteString("Nothing new.\n")
		return
	}
	body()
}

// Writer persists reports per child.
type Writer struct {
	fileProvider storage_manager.FileProvider
}

// NewWriter creates a writer. The provider is rooted at the children directory.
func NewWriter(provider storage_manager.FileProvider) *Writer {
	if provider == nil {
		panic("file provider cannot be nil")
	}
	return &Writer{fileProvider: provider}
}

// Save writes content as latest.md and as history/<timestamp>.md. It returns the history path.
func (w *Writer) Save(ctx context.Context, child string, at time.Time, content string) (string, error) {
	ns := children.SafeName(child)
	if err := w.fileProvider.Write(ctx, path.Join(ns, latestFile), []byte(content)); err != nil {
		return "", fmt.Errorf("failed to write latest report: %w", err)
	}
	historyPath := path.Join(ns, historyDir, at.Format(historyLayout)+".md")
	if err := w.fileProvider.Write(ctx, historyPath, []byte(content)); err != nil {
		return "", fmt.Errorf("failed to write report history: %w", err)
	}
	return historyPath, nil
}

// Latest returns the most recent report, or storage_manager.ErrNotFound.
func (w *Writer) Latest(ctx context.Context, child string) (string, error) {
	data, err := w.fileProvider.Read(ctx, path.Join(children.SafeName(child), latestFile))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// History lists the stored history reports of a child, oldest first.
func (w *Writer) History(ctx context.Context, child string) ([]string, error) {
	return w.fileProvider.List(ctx, path.Join(children.SafeName(child), historyDir))
}
