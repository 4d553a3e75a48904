package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saveenergy/ispcheck/pkg/types"
)

type PostgresStore struct {
	pool      *pgxpool.Pool
	closeOnce sync.Once
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+tableName+` (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		ping DOUBLE PRECISION NOT NULL,
		download_speed DOUBLE PRECISION NOT NULL,
		upload_speed DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		isp_detected TEXT NOT NULL,
		quality_assessment TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_speed_tests_timestamp ON `+tableName+`(timestamp)`)
	return err
}

func (s *PostgresStore) Close() {
	s.closeOnce.Do(s.pool.Close)
}

func (s *PostgresStore) Save(ctx context.Context, rec types.SpeedRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+tableName+` (id, ping, download_speed, upload_speed, timestamp, isp_detected, quality_assessment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Sample.PingMs, rec.Sample.DownloadMbps, rec.Sample.UploadMbps,
		rec.Sample.MeasuredAt.UTC(), rec.DetectedISP, rec.QualityTier,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]types.SpeedRecord, error) {
	query := `SELECT id, ping, download_speed, upload_speed, timestamp, isp_detected, quality_assessment
		FROM ` + tableName + ` ORDER BY timestamp DESC, seq DESC`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}

	rows, err := s.pool.Query(ctx, query)
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

func (s *PostgresStore) Get(ctx context.Context, id string) (types.SpeedRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, ping, download_speed, upload_speed, timestamp, isp_detected, quality_assessment
		FROM `+tableName+` WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.SpeedRecord{}, ErrNotFound
	}
	return rec, err
}
