// Package delta decides which extracted records are new since the last run.
package delta

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/lewisedginton/librus_mcp/internal/records"
)

// Layouts are the date formats found on portal pages.
var Layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006",
}

// Location is the time zone portal dates are written in.
var Location = loadLocation()

func loadLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseDate parses a portal date. Text following a leading date token,
// as in "2026-01-06 (pon.)", is ignored.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := parseLayouts(s); ok {
		return t, true
	}

	fields := strings.Fields(s)
	if len(fields) > 2 {
		if t, ok := parseLayouts(fields[0] + " " + fields[1]); ok {
			return t, true
		}
	}
	return parseLayouts(fields[0])
}

func parseLayouts(s string) (time.Time, bool) {
	for _, layout := range Layouts {
		if t, err := time.ParseInLocation(layout, s, Location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Filter keeps the records dated at or after cutoff. On a first run, or with
// no cutoff, everything is kept. Records whose date is empty or unparseable
// are kept as well and counted in the second return value.
func Filter[T records.Dated](items []T, cutoff *time.Time, firstRun bool) ([]T, int) {
	out := make([]T, 0, len(items))
	if firstRun || cutoff == nil {
		return append(out, items...), 0
	}

	unparsed := 0
	for _, item := range items {
		t, ok := ParseDate(item.RecordDate())
		if !ok {
			unparsed++
			out = append(out, item)
			continue
		}
		if !t.Before(*cutoff) {
			out = append(out, item)
		}
	}
	return out, unparsed
}

// Result is the outcome of filtering a whole record set.
type Result struct {
	Set      records.Set
	Unparsed map[records.Category]int
}

// UnparsedTotal sums fail-open records across categories.
func (r Result) UnparsedTotal() int {
	n := 0
	for _, c := range r.Unparsed {
		n += c
	}
	return n
}

// Stats counts the kept records per category.
func (r Result) Stats() records.Stats {
	st := records.StatsOf(r.Set)
	st.Unparsed = r.UnparsedTotal()
	return st
}

// FilterSet applies Filter to every category independently.
func FilterSet(set records.Set, cutoff *time.Time, firstRun bool) Result {
	res := Result{Set: records.NewSet(), Unparsed: make(map[records.Category]int)}
	var n int

	res.Set.Messages, n = Filter(set.Messages, cutoff, firstRun)
	res.Unparsed[records.Messages] = n
	res.Set.Announcements, n = Filter(set.Announcements, cutoff, firstRun)
	res.Unparsed[records.Announcements] = n
	res.Set.Grades, n = Filter(set.Grades, cutoff, firstRun)
	res.Unparsed[records.Grades] = n
	res.Set.Calendar, n = Filter(set.Calendar, cutoff, firstRun)
	res.Unparsed[records.Calendar] = n
	res.Set.Homework, n = Filter(set.Homework, cutoff, firstRun)
	res.Unparsed[records.Homework] = n
	res.Set.Remarks, n = Filter(set.Remarks, cutoff, firstRun)
	res.Unparsed[records.Remarks] = n

	return res
}
