// Package history persists speed test records. Records are append-only:
// nothing in this package updates or deletes a saved row.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/saveenergy/ispcheck/pkg/types"
)

const (
	tableName   = "speed_tests"
	sqliteFile  = "history.db"
	maxTierSize = 16
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("record not found")

type Store interface {
	Save(ctx context.Context, rec types.SpeedRecord) error
	// List returns records newest first. limit <= 0 returns every record.
	List(ctx context.Context, limit int) ([]types.SpeedRecord, error)
	Get(ctx context.Context, id string) (types.SpeedRecord, error)
	Close()
}

// Open returns a PostgreSQL store when databaseURL is set and a SQLite store
// under dataDir otherwise.
func Open(ctx context.Context, databaseURL, dataDir string) (Store, error) {
	if databaseURL != "" {
		return NewPostgres(ctx, databaseURL)
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return NewSQLite(filepath.Join(dataDir, sqliteFile))
}

func validate(rec types.SpeedRecord) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	if rec.DetectedISP == "" {
		return errors.New("detected isp is required")
	}
	if rec.QualityTier == "" || len(rec.QualityTier) > maxTierSize {
		return fmt.Errorf("invalid quality tier %q", rec.QualityTier)
	}
	if rec.Sample.MeasuredAt.IsZero() {
		return errors.New("sample timestamp is required")
	}
	return nil
}
