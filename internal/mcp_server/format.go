package mcp_server //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lewisedginton/librus_mcp/internal/collector"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/task_manager"
)

func formatScrape(res *collector.Result) string {
	var b strings.Builder
	b.WriteString(res.Report)
	if !strings.HasSuffix(res.Report, "\n") {
		b.WriteString("\n")
	}

	b.WriteString("\n---\n")
	fmt.Fprintf(&b, "Run %s (%s), %d new records.\n", res.RunID, res.Mode, res.Stats.Total())
	fmt.Fprintf(&b, "Memory: %d grades added, %d duplicates skipped", res.Merge.Added, res.Merge.Duplicates)
	if res.Merge.Dropped > 0 {
		fmt.Fprintf(&b, ", %d old grades dropped", res.Merge.Dropped)
	}
	b.WriteString(".\n")
	if res.TasksAdded > 0 {
		fmt.Fprintf(&b, "Tasks added: %d.\n", res.TasksAdded)
	}

	if len(res.Failed) > 0 {
		cats := make([]string, 0, len(res.Failed))
		for _, c := range records.Categories {
			if msg, ok := res.Failed[c]; ok {
				cats = append(cats, fmt.Sprintf("%s (%s)", c, msg))
			}
		}
		fmt.Fprintf(&b, "Failed categories: %s.\n", strings.Join(cats, ", "))
	}
	return b.String()
}

func formatTasks(child string, tasks []task_manager.Task) string {
	if len(tasks) == 0 {
		return fmt.Sprintf("No pending tasks for %s.", child)
	}

	sorted := append([]task_manager.Task(nil), tasks...)
	// undated tasks last
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].DueDate, sorted[j].DueDate
		if a == "" || b == "" {
			return a != ""
		}
		return a < b
	})

	var b strings.Builder
	fmt.Fprintf(&b, "# Pending tasks for %s (%d)\n\n", child, len(sorted))
	for _, t := range sorted {
		fmt.Fprintf(&b, "- [%s] %s", t.ID, t.Title)
		if t.DueDate != "" {
			fmt.Fprintf(&b, " (due %s)", t.DueDate)
		}
		fmt.Fprintf(&b, ", %s\n", t.Source)
		if t.Description != "" {
			fmt.Fprintf(&b, "  %s\n", t.Description)
		}
	}
	return b.String()
}
