// Package audit keeps a PostgreSQL trail of finished redaction jobs.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/pipeline"
)

const schema = `
	CREATE TABLE IF NOT EXISTS redaction_jobs (
		id           BIGSERIAL PRIMARY KEY,
		job_id       TEXT NOT NULL UNIQUE,
		generation   BIGINT NOT NULL,
		state        TEXT NOT NULL,
		error_code   TEXT NOT NULL DEFAULT '',
		match_count  INTEGER NOT NULL DEFAULT 0,
		categories   JSONB NOT NULL DEFAULT '{}',
		duration_ms  BIGINT NOT NULL DEFAULT 0,
		completed_at TIMESTAMPTZ NOT NULL
	)`

// Store handles job audit persistence in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the database and creates the audit table if needed
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create redaction_jobs table: %w", err)
	}

	return nil
}

// Record inserts a terminal job. Recording the same job twice is a no-op.
func (s *Store) Record(ctx context.Context, rec pipeline.JobRecord) error {
	row, err := rowFromRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO redaction_jobs
			(job_id, generation, state, error_code, match_count, categories, duration_ms, completed_at)
		VALUES
			(:job_id, :generation, :state, :error_code, :match_count, :categories, :duration_ms, :completed_at)
		ON CONFLICT (job_id) DO NOTHING`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		s.logger.Error("Failed to record job",
			zap.Error(err),
			zap.String("job_id", row.JobID))
		return fmt.Errorf("failed to record job: %w", err)
	}

	s.logger.Debug("Job recorded",
		zap.String("job_id", row.JobID),
		zap.String("state", row.State),
		zap.Int("match_count", row.MatchCount))

	return nil
}

// Recent returns the most recently completed jobs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]JobRow, error) {
	if limit <= 0 {
		limit = 20
	}

	rows := []JobRow{}
	query := `
		SELECT id, job_id, generation, state, error_code, match_count,
			categories::text AS categories, duration_ms, completed_at
		FROM redaction_jobs
		ORDER BY completed_at DESC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return rows, nil
}

// GetStats returns totals over the whole trail
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN state = 'ready' THEN 1 END) AS ready,
			COUNT(CASE WHEN state = 'failed' THEN 1 END) AS failed,
			COALESCE(SUM(match_count), 0) AS matches
		FROM redaction_jobs`

	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func rowFromRecord(rec pipeline.JobRecord) (JobRow, error) {
	categories := rec.Categories
	if categories == nil {
		categories = map[string]int{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return JobRow{}, fmt.Errorf("failed to encode categories: %w", err)
	}

	return JobRow{
		JobID:       rec.JobID,
		Generation:  int64(rec.Generation),
		State:       string(rec.State),
		ErrorCode:   string(rec.ErrorCode),
		MatchCount:  rec.MatchCount,
		Categories:  string(encoded),
		DurationMs:  rec.Duration.Milliseconds(),
		CompletedAt: rec.CompletedAt,
	}, nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
