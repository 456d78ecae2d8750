package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	set := records.NewSet()
	set.Messages = []records.Message{{Sender: "Nowak Anna", Title: "Wycieczka", Date: "2026-01-05", Content: "Zbiórka o 8:00"}}
	set.Grades = []records.Grade{{Subject: "Matematyka", Grade: "5", Date: "2026-01-05", Category: "Kartkówka", Weight: "2", Teacher: "Kowalski Jan"}}
	cutoff := time.Date(2026, 1, 4, 23, 59, 59, 0, time.UTC)

	out := Render(Header{
		Child:       "Jakub",
		Mode:        "DELTA",
		CollectedAt: time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC),
		Cutoff:      &cutoff,
	}, set)

	assert.Contains(t, out, "# Librus report: Jakub")
	assert.Contains(t, out, "- Mode: DELTA")
	assert.Contains(t, out, "- New since: 2026-01-04 23:59:59")
	assert.Contains(t, out, "- grades: 1")
	assert.Contains(t, out, "- calendar: 0")
	assert.Contains(t, out, "## Messages (1)")
	assert.Contains(t, out, "unread")
	assert.Contains(t, out, "| Matematyka | 5 | 2026-01-05 | Kartkówka | 2 | Kowalski Jan |")
	assert.Contains(t, out, "## Calendar (0)\n\nNothing new.")
}

func TestWriterSave(t *testing.T) {
	ctx := context.Background()
	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	w := NewWriter(provider)

	_, err := w.Latest(ctx, "Jakub")
	assert.True(t, errors.Is(err, storage_manager.ErrNotFound))

	at := time.Date(2026, 1, 5, 18, 4, 5, 0, time.UTC)
	p, err := w.Save(ctx, "Jakub", at, "first")
	require.NoError(t, err)
	assert.Equal(t, "jakub/history/2026-01-05_18-04-05.md", p)

	_, err = w.Save(ctx, "Jakub", at.Add(time.Hour), "second")
	require.NoError(t, err)

	latest, err := w.Latest(ctx, "Jakub")
	require.NoError(t, err)
	assert.Equal(t, "second", latest)

	history, err := w.History(ctx, "Jakub")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
