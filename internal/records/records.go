// Package records defines the typed raw records extracted from the portal and
// the fixed-schema set that carries one slice per category.
package records

import (
	"encoding/json"
	"fmt"
)

// Category names one kind of portal record.
type Category string

const (
	Messages      Category = "messages"
	Announcements Category = "announcements"
	Grades        Category = "grades"
	Calendar      Category = "calendar"
	Homework      Category = "homework"
	Remarks       Category = "remarks"
)

// Categories lists every category in extraction order.
var Categories = []Category{Messages, Announcements, Grades, Calendar, Homework, Remarks}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Dated is implemented by every record; RecordDate is the natural date field
// the delta filter compares against the cutoff.
type Dated interface {
	RecordDate() string
}

// Message is one inbox message.
type Message struct {
	Sender      string   `json:"sender"`
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	IsRead      bool     `json:"is_read"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
	Link        string   `json:"link,omitempty"`
}

func (m Message) RecordDate() string { return m.Date }

// Announcement is a school-wide notice.
type Announcement struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

func (a Announcement) RecordDate() string { return a.Date }

// Grade is one mark in one subject.
type Grade struct {
	Subject  string `json:"subject"`
	Grade    string `json:"grade"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Weight   string `json:"weight"`
	Teacher  string `json:"teacher"`
	Comment  string `json:"comment,omitempty"`
	Period   string `json:"period,omitempty"`
}

func (g Grade) RecordDate() string { return g.Date }

// CalendarEvent is an entry from the school timetable calendar (tests, trips, days off).
type CalendarEvent struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Subject     string `json:"subject,omitempty"`
	Lesson      string `json:"lesson,omitempty"`
	Teacher     string `json:"teacher,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c CalendarEvent) RecordDate() string { return c.Date }

// HomeworkItem is an assignment. Its natural date is the day it was added.
type HomeworkItem struct {
	Subject   string `json:"subject"`
	Title     string `json:"title"`
	Teacher   string `json:"teacher"`
	Category  string `json:"category,omitempty"`
	DateAdded string `json:"date_added"`
	DateDue   string `json:"date_due"`
}

func (h HomeworkItem) RecordDate() string { return h.DateAdded }

// SourceKey identifies a homework item across runs.
func (h HomeworkItem) SourceKey() string {
	return "homework|" + h.Subject + "|" + h.Title + "|" + h.DateDue
}

// Remark is a teacher's note about behaviour or progress.
type Remark struct {
	Content  string `json:"content"`
	Date     string `json:"date"`
	Teacher  string `json:"teacher"`
	Category string `json:"category,omitempty"`
}

func (r Remark) RecordDate() string { return r.Date }

// Set carries one slice per category. A category that yielded nothing is an
// empty slice and serialises as [], never as null or a missing key.
type Set struct {
	Messages      []Message       `json:"messages"`
	Announcements []Announcement  `json:"announcements"`
	Grades        []Grade         `json:"grades"`
	Calendar      []CalendarEvent `json:"calendar"`
	Homework      []HomeworkItem  `json:"homework"`
	Remarks       []Remark        `json:"remarks"`
}

// NewSet returns a set with every slice allocated.
func NewSet() Set {
	var s Set
	s.Normalize()
	return s
}

// Normalize replaces nil slices with empty ones.
func (s *Set) Normalize() {
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Announcements == nil {
		s.Announcements = []Announcement{}
	}
	if s.Grades == nil {
		s.Grades = []Grade{}
	}
	if s.Calendar == nil {
		s.Calendar = []CalendarEvent{}
	}
	if s.Homework == nil {
		s.Homework = []HomeworkItem{}
	}
	if s.Remarks == nil {
		s.Remarks = []Remark{}
	}
}

// MarshalJSON normalises before encoding.
func (s Set) MarshalJSON() ([]byte, error) {
	s.Normalize()
	type plain Set
	return json.Marshal(plain(s))
}

// UnmarshalJSON decodes and normalises, so a stored snapshot missing a category reads as empty.
func (s *Set) UnmarshalJSON(data []byte) error {
	type plain Set
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Set(p)
	s.Normalize()
	return nil
}

// Count returns the number of records in one category.
func (s Set) Count(c Category) int {
	switch c {
	case Messages:
		return len(s.Messages)
	case Announcements:
		return len(s.Announcements)
	case Grades:
		return len(s.Grades)
	case Calendar:
		return len(s.Calendar)
	case Homework:
		return len(s.Homework)
	case Remarks:
		return len(s.Remarks)
	}
	return 0
}

// Stats counts records kept per category plus the records kept only because
// their date could not be parsed.
type Stats struct {
	Messages      int `json:"messages"`
	Announcements int `json:"announcements"`
	Grades        int `json:"grades"`
	Calendar      int `json:"calendar"`
	Homework      int `json:"homework"`
	Remarks       int `json:"remarks"`
	Unparsed      int `json:"unparsed_dates"`
}

// StatsOf counts the records in s.
func StatsOf(s Set) Stats {
	return Stats{
		Messages:      len(s.Messages),
		Announcements: len(s.Announcements),
		Grades:        len(s.Grades),
		Calendar:      len(s.Calendar),
		Homework:      len(s.Homework),
		Remarks:       len(s.Remarks),
	}
}

// Total is the number of records across categories.
func (st Stats) Total() int {
	return st.Messages + st.Announcements + st.Grades + st.Calendar + st.Homework + st.Remarks
}
