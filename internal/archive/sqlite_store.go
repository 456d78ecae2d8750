package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS archive_snapshots (
	child TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	collected_at TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (child, year, month)
);
`

// SQLiteStore keeps snapshots in one SQLite table keyed by (child, year, month).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the archive database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	// a single connection serialises writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialise archive database: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, child string, year int, month time.Month, snap Snapshot) error {
	if err := checkMonth(year, month); err != nil {
		return err
	}
	snap.Month = MonthKey{Year: year, Month: month}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO archive_snapshots (child, year, month, collected_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (child, year, month) DO UPDATE SET
			collected_at = excluded.collected_at,
			data = excluded.data`,
		children.SafeName(child), year, int(month), snap.CollectedAt.UTC().Format(time.RFC3339), string(data))
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", snap.Month, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, child string, year int, month time.Month) (*Snapshot, error) {
	key := MonthKey{Year: year, Month: month}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM archive_snapshots WHERE child = ? AND year = ? AND month = ?`,
		children.SafeName(child), year, int(month)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", child, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Months lists the archived months of a child, newest first.
func (s *SQLiteStore) Months(ctx context.Context, child string) ([]MonthKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, month FROM archive_snapshots WHERE child = ? ORDER BY year DESC, month DESC`,
		children.SafeName(child))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []MonthKey{}
	for rows.Next() {
		var k MonthKey
		var m int
		if err := rows.Scan(&k.Year, &m); err != nil {
			return nil, err
		}
		k.Month = time.Month(m)
		out = append(out, k)
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
