package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/saveenergy/ispcheck/internal/logging"
	"github.com/saveenergy/ispcheck/pkg/types"
)

type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
}

func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(3)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite takes PRAGMAs as statements, not DSN parameters.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + tableName + ` (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		ping REAL NOT NULL,
		download_speed REAL NOT NULL,
		upload_speed REAL NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		isp_detected TEXT NOT NULL,
		quality_assessment TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_speed_tests_timestamp ON ` + tableName + `(timestamp)`)
	return err
}

func (s *SQLiteStore) Close() {
	s.closeOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			logging.Warn("history store: close failed", logging.Err(err))
		}
	})
}

func (s *SQLiteStore) Save(ctx context.Context, rec types.SpeedRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+tableName+` (id, ping, download_speed, upload_speed, timestamp, isp_detected, quality_assessment)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Sample.PingMs, rec.Sample.DownloadMbps, rec.Sample.UploadMbps,
		rec.Sample.MeasuredAt.UTC(), rec.DetectedISP, rec.QualityTier,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]types.SpeedRecord, error) {
	query := `SELECT id, ping, download_speed, upload_speed, timestamp, isp_detected, quality_assessment
		FROM ` + tableName + ` ORDER BY timestamp DESC, seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []types.SpeedRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (types.SpeedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ping, download_speed, upload_speed, timestamp, isp_detected, quality_assessment
		FROM `+tableName+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SpeedRecord{}, ErrNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (types.SpeedRecord, error) {
	var rec types.SpeedRecord
	err := row.Scan(&rec.ID, &rec.Sample.PingMs, &rec.Sample.DownloadMbps, &rec.Sample.UploadMbps,
		&rec.Sample.MeasuredAt, &rec.DetectedISP, &rec.QualityTier)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan record: %w", err)
	}
	rec.Sample.MeasuredAt = rec.Sample.MeasuredAt.UTC()
	return rec, nil
}
