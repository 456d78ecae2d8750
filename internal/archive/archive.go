// Package archive stores one collected snapshot per child and calendar month.
// A later run in the same month replaces the earlier snapshot.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/delta"
	"github.com/lewisedginton/librus_mcp/internal/records"
)

// ErrNotFound is returned by Get when no snapshot exists for the month.
var ErrNotFound = errors.New("archive snapshot not found")

// MonthKey identifies a calendar month. It encodes as "2026-01".
type MonthKey struct {
	Year  int
	Month time.Month
}

// KeyOf returns the month containing t.
func KeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseMonthKey parses "YYYY-MM".
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return KeyOf(t), nil
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Prev returns the month before k, wrapping January to December of the previous year.
func (k MonthKey) Prev() MonthKey {
	if k.Month == time.January {
		return MonthKey{Year: k.Year - 1, Month: time.December}
	}
	return MonthKey{Year: k.Year, Month: k.Month - 1}
}

func (k MonthKey) Valid() bool {
	return k.Month >= time.January && k.Month <= time.December
}

func (k MonthKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MonthKey) UnmarshalText(b []byte) error {
	parsed, err := ParseMonthKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Snapshot is everything collected in one run.
type Snapshot struct {
	ChildName   string        `json:"child_name"`
	Month       MonthKey      `json:"month"`
	CollectedAt time.Time     `json:"collected_at"`
	Mode        string        `json:"mode"`
	Records     records.Set   `json:"records"`
	Stats       records.Stats `json:"stats"`
}

// Store persists monthly snapshots.
type Store interface {
	// Put replaces any snapshot already stored for the month
	Put(ctx context.Context, child string, year int, month time.Month, snap Snapshot) error
	// Get returns ErrNotFound (possibly wrapped) for a missing month
	Get(ctx context.Context, child string, year int, month time.Month) (*Snapshot, error)
}

// GetRecent returns up to n snapshots walking back from the month of now,
// which counts as the first step. Months without a snapshot are skipped.
// The month of now is taken in the portal zone, matching how runs are keyed.
func GetRecent(ctx context.Context, store Store, child string, n int, now time.Time) ([]Snapshot, error) {
	out := []Snapshot{}
	key := KeyOf(now.In(delta.Location))
	for i := 0; i < n; i++ {
		snap, err := store.Get(ctx, child, key.Year, key.Month)
		switch {
		case err == nil:
			out = append(out, *snap)
		case errors.Is(err, ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to read archive %s for %s: %w", key, child, err)
		}
		key = key.Prev()
	}
	return out, nil
}

func checkMonth(year int, month time.Month) error {
	if !(MonthKey{Year: year, Month: month}).Valid() {
		return fmt.Errorf("invalid month %d-%d", year, month)
	}
	return nil
}
