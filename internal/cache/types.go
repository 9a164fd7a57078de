package cache

import (
	"time"
)

// Config contains cache configuration. Cached results hold the full
// recognized text, PII included, so the Redis instance needs the same access
// controls as the uploaded documents.
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	// Variant identifies the recognition settings (page segmentation,
	// preprocessing) that produced a result.
	Variant        string        `yaml:"-" mapstructure:"-"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	TotalKeys int64   `json:"total_keys"`
}
