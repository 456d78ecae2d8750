// Package memory_service keeps the durable per-child memory: grade history per
// subject with derived trends, plus free-form issues, action items and parent notes.
package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/trend"
)

// MaxHistory is the number of grades kept per subject.
const MaxHistory = 20

// GradeEntry is one grade in a subject's history. Two entries are duplicates
// when every field is equal.
type GradeEntry struct {
	Grade    string `json:"grade"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Weight   string `json:"weight"`
}

func entryFromGrade(g records.Grade) GradeEntry {
	return GradeEntry{Grade: g.Grade, Date: g.Date, Category: g.Category, Weight: g.Weight}
}

// Note is a timestamped free-text memory item.
type Note struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NoteKind selects which list a note is appended to.
type NoteKind string

const (
	KindIssue      NoteKind = "issue"
	KindActionItem NoteKind = "action_item"
	KindParentNote NoteKind = "parent_note"
)

// ParseNoteKind validates a note kind.
func ParseNoteKind(s string) (NoteKind, error) {
	switch k := NoteKind(s); k {
	case KindIssue, KindActionItem, KindParentNote:
		return k, nil
	}
	return "", fmt.Errorf("unknown note kind %q (want issue, action_item or parent_note)", s)
}

// Memory is the whole persisted memory of one child.
type Memory struct {
	ChildName    string                  `json:"child_name"`
	GradeHistory map[string][]GradeEntry `json:"grade_history"`
	Trends       map[string]trend.Record `json:"trends"`
	Issues       []Note                  `json:"issues"`
	ActionItems  []Note                  `json:"action_items"`
	ParentNotes  []Note                  `json:"parent_notes"`
	LastUpdated  *time.Time              `json:"last_updated"`
}

// NewMemory returns the empty default memory.
func NewMemory(child string) *Memory {
	m := &Memory{ChildName: child}
	m.normalize()
	return m
}

func (m *Memory) normalize() {
	if m.GradeHistory == nil {
		m.GradeHistory = make(map[string][]GradeEntry)
	}
	if m.Trends == nil {
		m.Trends = make(map[string]trend.Record)
	}
	if m.Issues == nil {
		m.Issues = []Note{}
	}
	if m.ActionItems == nil {
		m.ActionItems = []Note{}
	}
	if m.ParentNotes == nil {
		m.ParentNotes = []Note{}
	}
}

func (m *Memory) notes(kind NoteKind) *[]Note {
	switch kind {
	case KindIssue:
		return &m.Issues
	case KindActionItem:
		return &m.ActionItems
	default:
		return &m.ParentNotes
	}
}

// MergeStats describes what one merge changed.
type MergeStats struct {
	Added      int      `json:"added"`
	Duplicates int      `json:"duplicates"`
	Dropped    int      `json:"dropped"`
	Subjects   []string `json:"subjects"`
}
