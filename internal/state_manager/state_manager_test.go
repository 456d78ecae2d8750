package state_manager

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/delta"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, storage_manager.FileProvider) {
	t.Helper()
	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	return New(Config{
		FileProvider: provider,
		Logger:       logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard}),
	}), provider
}

func TestMode(t *testing.T) {
	now := time.Now()

	assert.Equal(t, ModeFull, Mode(nil, false))
	assert.Equal(t, ModeFull, Mode(nil, true))
	assert.Equal(t, ModeFull, Mode(&now, true))
	assert.Equal(t, ModeDelta, Mode(&now, false))
}

func TestEffectiveCutoff(t *testing.T) {
	cet := time.FixedZone("CET", 3600)

	testCases := []struct {
		name   string
		cutoff time.Time
		loc    *time.Location
		want   time.Time
	}{
		{
			name:   "mid month",
			cutoff: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
			loc:    time.UTC,
			want:   time.Date(2026, 1, 14, 23, 59, 59, 0, time.UTC),
		},
		{
			name:   "first of month",
			cutoff: time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC),
			loc:    time.UTC,
			want:   time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC),
		},
		{
			name:   "new year",
			cutoff: time.Date(2026, 1, 1, 8, 0, 0, 0, cet),
			loc:    cet,
			want:   time.Date(2025, 12, 31, 23, 59, 59, 0, cet),
		},
		{
			name:   "utc evening is already the next day in cet",
			cutoff: time.Date(2026, 1, 12, 23, 30, 0, 0, time.UTC),
			loc:    cet,
			want:   time.Date(2026, 1, 12, 23, 59, 59, 0, cet),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := EffectiveCutoff(tc.cutoff, tc.loc)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
			assert.Equal(t, tc.loc, got.Location())
		})
	}
}

func TestEffectiveCutoffKeepsSameDayPortalRecords(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// 23:30 in Warsaw, stored from a process running in UTC
	lastRun := time.Date(2026, 10, 14, 21, 30, 0, 0, time.UTC)
	require.NoError(t, m.Advance(ctx, "Jakub", lastRun))

	stored, err := m.GetCutoff(ctx, "Jakub")
	require.NoError(t, err)
	require.NotNil(t, stored)

	cutoff := EffectiveCutoff(*stored, delta.Location)
	want := time.Date(2026, 10, 13, 23, 59, 59, 0, delta.Location)
	assert.True(t, want.Equal(cutoff), "want %s, got %s", want, cutoff)

	kept, unparsed := delta.Filter([]records.Grade{
		{Subject: "Matematyka", Grade: "5", Date: "2026-10-14"},
		{Subject: "Matematyka", Grade: "4", Date: "2026-10-13"},
	}, &cutoff, false)
	assert.Zero(t, unparsed)
	require.Len(t, kept, 1)
	assert.Equal(t, "2026-10-14", kept[0].Date)
}

func TestGetCutoffNeverCollected(t *testing.T) {
	m, _ := newTestManager(t)

	cutoff, err := m.GetCutoff(context.Background(), "Jakub")
	require.NoError(t, err)
	assert.Nil(t, cutoff)

	st, err := m.Get(context.Background(), "Jakub")
	require.NoError(t, err)
	assert.Equal(t, "Jakub", st.ChildName)
	assert.False(t, st.SetupCompleted)
}

func TestAdvanceAndSetup(t *testing.T) {
	m, provider := newTestManager(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)

	require.NoError(t, m.MarkSetupCompleted(ctx, "Anna Maria"))
	require.NoError(t, m.Advance(ctx, "Anna Maria", ts))

	cutoff, err := m.GetCutoff(ctx, "Anna Maria")
	require.NoError(t, err)
	require.NotNil(t, cutoff)
	assert.True(t, ts.Equal(*cutoff))

	st, err := m.Get(ctx, "Anna Maria")
	require.NoError(t, err)
	assert.True(t, st.SetupCompleted)

	data, err := provider.Read(ctx, "anna-maria/state.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_scrape_iso"`)
	assert.Contains(t, string(data), `"setup_completed": true`)
}

func TestGetCorruptState(t *testing.T) {
	m, provider := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, provider.Write(ctx, "jakub/state.json", []byte("{not json")))

	_, err := m.GetCutoff(ctx, "Jakub")
	assert.Error(t, err)
}
