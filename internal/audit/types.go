package audit

import (
	"time"
)

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// JobRow is one terminal job in the audit trail. It holds counts only;
// matched text and images are never persisted.
type JobRow struct {
	ID          int64     `db:"id" json:"id"`
	JobID       string    `db:"job_id" json:"job_id"`
	Generation  int64     `db:"generation" json:"generation"`
	State       string    `db:"state" json:"state"`
	ErrorCode   string    `db:"error_code" json:"error_code,omitempty"`
	MatchCount  int       `db:"match_count" json:"match_count"`
	Categories  string    `db:"categories" json:"categories"`
	DurationMs  int64     `db:"duration_ms" json:"duration_ms"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
}

// Stats summarizes the audit trail
type Stats struct {
	TotalJobs    int64 `db:"total" json:"total_jobs"`
	ReadyJobs    int64 `db:"ready" json:"ready_jobs"`
	FailedJobs   int64 `db:"failed" json:"failed_jobs"`
	TotalMatches int64 `db:"matches" json:"total_matches"`
}
