package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func snapshotWith(subject string, at time.Time) Snapshot {
	set := records.NewSet()
	set.Grades = []records.Grade{{Subject: subject, Grade: "5", Date: at.Format("2006-01-02")}}
	return Snapshot{ChildName: "Jakub", CollectedAt: at, Mode: "FULL", Records: set, Stats: records.StatsOf(set)}
}

func TestMonthKey(t *testing.T) {
	k, err := ParseMonthKey("2026-01")
	require.NoError(t, err)
	assert.Equal(t, MonthKey{Year: 2026, Month: time.January}, k)
	assert.Equal(t, "2026-01", k.String())
	assert.Equal(t, MonthKey{Year: 2025, Month: time.December}, k.Prev())
	assert.Equal(t, MonthKey{Year: 2026, Month: time.February}, MonthKey{Year: 2026, Month: time.March}.Prev())

	data, err := json.Marshal(struct {
		M MonthKey `json:"m"`
	}{k})
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":"2026-01"}`, string(data))

	var back struct {
		M MonthKey `json:"m"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, k, back.M)

	_, err = ParseMonthKey("2026-13")
	assert.Error(t, err)
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("missing month", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "Jakub", 2026, time.January)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		at := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
		require.NoError(t, s.Put(ctx, "Jakub", 2026, time.January, snapshotWith("Fizyka", at)))

		got, err := s.Get(ctx, "Jakub", 2026, time.January)
		require.NoError(t, err)
		assert.Equal(t, MonthKey{Year: 2026, Month: time.January}, got.Month)
		assert.Equal(t, "Fizyka", got.Records.Grades[0].Subject)
		assert.NotNil(t, got.Records.Calendar)
		assert.True(t, at.Equal(got.CollectedAt))
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "Jakub", 2026, time.January, snapshotWith("Fizyka", time.Now())))
		require.NoError(t, s.Put(ctx, "Jakub", 2026, time.January, snapshotWith("Chemia", time.Now())))

		got, err := s.Get(ctx, "Jakub", 2026, time.January)
		require.NoError(t, err)
		require.Len(t, got.Records.Grades, 1)
		assert.Equal(t, "Chemia", got.Records.Grades[0].Subject)
	})

	t.Run("children are separate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "Jakub", 2026, time.January, snapshotWith("Fizyka", time.Now())))

		_, err := s.Get(ctx, "Anna", 2026, time.January)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid month", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Put(ctx, "Jakub", 2026, time.Month(13), snapshotWith("Fizyka", time.Now())))
	})
}

func TestFileStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return NewFileStore(storage_manager.NewLocalFileProvider(t.TempDir()))
	})

	t.Run("layout", func(t *testing.T) {
		provider := storage_manager.NewLocalFileProvider(t.TempDir())
		s := NewFileStore(provider)
		require.NoError(t, s.Put(context.Background(), "Anna Maria", 2026, time.March, snapshotWith("Fizyka", time.Now())))

		ok, err := provider.Exists(context.Background(), "anna-maria/archive/2026-03.json")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})

	t.Run("months newest first", func(t *testing.T) {
		ctx := context.Background()
		s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "archive.db"))
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Put(ctx, "Jakub", 2025, time.December, snapshotWith("A", time.Now())))
		require.NoError(t, s.Put(ctx, "Jakub", 2026, time.February, snapshotWith("B", time.Now())))
		require.NoError(t, s.Put(ctx, "Jakub", 2026, time.January, snapshotWith("C", time.Now())))

		months, err := s.Months(ctx, "jakub")
		require.NoError(t, err)
		assert.Equal(t, []MonthKey{{2026, time.February}, {2026, time.January}, {2025, time.December}}, months)
		assert.NoError(t, s.Ping(ctx))
	})
}

type failingStore struct{ Store }

func (failingStore) Get(context.Context, string, int, time.Month) (*Snapshot, error) {
	return nil, errors.New("disk on fire")
}

func TestGetRecent(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(storage_manager.NewLocalFileProvider(t.TempDir()))
	require.NoError(t, s.Put(ctx, "Jakub", 2025, time.December, snapshotWith("Dec", time.Now())))
	require.NoError(t, s.Put(ctx, "Jakub", 2026, time.February, snapshotWith("Feb", time.Now())))
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	t.Run("current month is the first step", func(t *testing.T) {
		got, err := GetRecent(ctx, s, "Jakub", 1, now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Feb", got[0].Records.Grades[0].Subject)
	})

	t.Run("wraps year and skips missing", func(t *testing.T) {
		got, err := GetRecent(ctx, s, "Jakub", 3, now)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, MonthKey{2026, time.February}, got[0].Month)
		assert.Equal(t, MonthKey{2025, time.December}, got[1].Month)
	})

	t.Run("zero steps", func(t *testing.T) {
		got, err := GetRecent(ctx, s, "Jakub", 0, now)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("month boundary in the portal zone", func(t *testing.T) {
		// 00:30 on 1 November in Warsaw
		late := time.Date(2026, 10, 31, 23, 30, 0, 0, time.UTC)
		require.NoError(t, s.Put(ctx, "Jakub", 2026, time.November, snapshotWith("Nov", late)))

		got, err := GetRecent(ctx, s, "Jakub", 1, late)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, MonthKey{2026, time.November}, got[0].Month)
	})

	t.Run("storage errors propagate", func(t *testing.T) {
		_, err := GetRecent(ctx, failingStore{}, "Jakub", 2, now)
		assert.Error(t, err)
	})
}
