// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Batch operations
	SaveBatch(ctx context.Context, tenantID string, batch *Batch) error
	GetBatch(ctx context.Context, tenantID string, batchID string) (*Batch, error)
	MarkBatchScored(ctx context.Context, tenantID string, batchID string, scoredAt time.Time) error

	// Tender operations
	SaveTenders(ctx context.Context, tenantID string, batchID string, tenders []*Tender) error
	GetTender(ctx context.Context, tenantID string, tenderID string) (*Tender, error)
	ListTenders(ctx context.Context, tenantID string, batchID string) ([]*Tender, error)

	// Risk report operations
	SaveReports(ctx context.Context, tenantID string, reports []*RiskReport) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*RiskReport, error)
	ListReports(ctx context.Context, tenantID string, batchID string, filter ReportFilter) ([]*RiskReport, error)

	// Custom rule configuration operations
	SaveCustomRule(ctx context.Context, tenantID string, rule *CustomRuleConfig) error
	GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*CustomRuleConfig, error)
	ListCustomRules(ctx context.Context, tenantID string) ([]*CustomRuleConfig, error)
	DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDB       string `koanf:"postgres_db"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}
