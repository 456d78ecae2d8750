package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"
	"slices"
	"strings"
)

// formatLimit is how many items of each list Format shows.
const formatLimit = 5

// Format renders memory as markdown: trends, the latest notes of each kind
// and the latest grades per subject.
func Format(mem *Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Memory: %s\n\n", mem.ChildName)
	if mem.LastUpdated != nil {
		fmt.Fprintf(&b, "Last updated: %s\n\n", mem.LastUpdated.Format("2006-01-02 15:04"))
	}

	b.WriteString("## Grade trends\n\n")
	if len(mem.Trends) == 0 {
		b.WriteString("No trends yet.\n")
	}
	for _, subject := range sortedKeys(mem.Trends) {
		t := mem.Trends[subject]
		fmt.Fprintf(&b, "- %s: %s (%s)\n", subject, t.Direction, strings.Join(t.Recent, ", "))
	}

	writeNotes(&b, "Issues", mem.Issues)
	writeNotes(&b, "Action items", mem.ActionItems)
	writeNotes(&b, "Parent notes", mem.ParentNotes)

	b.WriteString("\n## Recent grades\n\n")
	if len(mem.GradeHistory) == 0 {
		b.WriteString("No grades yet.\n")
	}
	for _, subject := range sortedKeys(mem.GradeHistory) {
		history := lastN(mem.GradeHistory[subject], formatLimit)
		grades := make([]string, len(history))
		for i, e := range history {
			grades[i] = e.Grade
			if e.Date != "" {
				grades[i] += " (" + e.Date + ")"
			}
		}
		fmt.Fprintf(&b, "- %s: %s\n", subject, strings.Join(grades, ", "))
	}
	return b.String()
}

func writeNotes(b *strings.Builder, title string, notes []Note) {
	fmt.Fprintf(b, "\n## %s\n\n", title)
	if len(notes) == 0 {
		b.WriteString("None.\n")
		return
	}
	for _, n := range lastN(notes, formatLimit) {
		fmt.Fprintf(b, "- [%s] %s\n", n.Timestamp.Format("2006-01-02"), n.Content)
	}
}

func lastN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
