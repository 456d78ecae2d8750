package delta

import (
	"testing"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cutoffAt(t *testing.T, s string) *time.Time {
	t.Helper()
	c, err := time.ParseInLocation("2006-01-02 15:04:05", s, Location)
	require.NoError(t, err)
	return &c
}

func TestParseDate(t *testing.T) {
	testCases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"2026-01-05", "2026-01-05 00:00", true},
		{"2026-01-05 14:30:15", "2026-01-05 14:30", true},
		{"2026-01-05 14:30", "2026-01-05 14:30", true},
		{"05.01.2026", "2026-01-05 00:00", true},
		{"2026-01-06 (pon.)", "2026-01-06 00:00", true},
		{"2026-01-06 08:00 lekcja 1", "2026-01-06 08:00", true},
		{"  2026-01-07  ", "2026-01-07 00:00", true},
		{"", "", false},
		{"wczoraj", "", false},
		{"2026-13-40", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := ParseDate(tc.raw)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, got.Format("2006-01-02 15:04"))
				assert.Equal(t, Location, got.Location())
			}
		})
	}
}

func TestFilterFirstRunKeepsEverything(t *testing.T) {
	grades := []records.Grade{{Date: "2020-01-01"}, {Date: ""}, {Date: "2026-01-05"}}

	kept, unparsed := Filter(grades, nil, true)
	assert.Equal(t, grades, kept)
	assert.Equal(t, 0, unparsed)

	kept, _ = Filter(grades, cutoffAt(t, "2026-01-04 23:59:59"), true)
	assert.Len(t, kept, 3)
}

func TestFilterCutoff(t *testing.T) {
	cutoff := cutoffAt(t, "2026-01-04 23:59:59")
	grades := []records.Grade{
		{Subject: "old", Date: "2026-01-04"},
		{Subject: "boundary", Date: "2026-01-04 23:59:59"},
		{Subject: "new", Date: "2026-01-05"},
		{Subject: "empty", Date: ""},
		{Subject: "garbage", Date: "n/a"},
	}

	kept, unparsed := Filter(grades, cutoff, false)

	subjects := make([]string, 0, len(kept))
	for _, g := range kept {
		subjects = append(subjects, g.Subject)
	}
	assert.Equal(t, []string{"boundary", "new", "empty", "garbage"}, subjects)
	assert.Equal(t, 2, unparsed)
}

func TestFilterNeverNil(t *testing.T) {
	kept, _ := Filter([]records.Remark(nil), cutoffAt(t, "2026-01-04 23:59:59"), false)
	assert.NotNil(t, kept)
	assert.Empty(t, kept)
}

func TestFilterMonotonic(t *testing.T) {
	msgs := []records.Message{
		{Date: "2026-01-01 10:00"}, {Date: "2026-01-03 09:00"}, {Date: "2026-01-05 12:00"}, {Date: "bad"},
	}
	early, _ := Filter(msgs, cutoffAt(t, "2026-01-01 23:59:59"), false)
	late, _ := Filter(msgs, cutoffAt(t, "2026-01-04 23:59:59"), false)

	assert.GreaterOrEqual(t, len(early), len(late))
	for _, m := range late {
		assert.Contains(t, early, m)
	}
}

func TestFilterSetPerCategory(t *testing.T) {
	set := records.NewSet()
	set.Messages = []records.Message{{Date: "2026-01-02"}, {Date: "2026-01-06"}}
	set.Homework = []records.HomeworkItem{{DateAdded: "2026-01-06", DateDue: "2026-01-01"}, {DateAdded: ""}}
	set.Calendar = []records.CalendarEvent{{Date: "2026-01-20"}}

	res := FilterSet(set, cutoffAt(t, "2026-01-04 23:59:59"), false)

	assert.Len(t, res.Set.Messages, 1)
	assert.Len(t, res.Set.Homework, 2)
	assert.Len(t, res.Set.Calendar, 1)
	assert.NotNil(t, res.Set.Grades)
	assert.Equal(t, 1, res.Unparsed[records.Homework])
	assert.Equal(t, 1, res.UnparsedTotal())

	st := res.Stats()
	assert.Equal(t, 1, st.Messages)
	assert.Equal(t, 0, st.Grades)
	assert.Equal(t, 1, st.Unparsed)
}
