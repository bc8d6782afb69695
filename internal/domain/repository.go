package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. All methods take a
// programID; storage is scoped per loyalty program.
type Repository interface {
	// Rule documents. Rules are stored as the serialized JSON document and
	// written whole (last-write-wins).
	SaveRule(ctx context.Context, programID string, rule *Rule) error
	GetRule(ctx context.Context, programID string, ruleID string) (*Rule, error)
	ListRules(ctx context.Context, programID string) ([]*Rule, error)
	ListLiveRules(ctx context.Context, programID string) ([]*Rule, error)
	DeleteRule(ctx context.Context, programID string, ruleID string) error

	// Campaign groupings
	SaveCampaign(ctx context.Context, programID string, c *Campaign) error
	GetCampaign(ctx context.Context, programID string, campaignID string) (*Campaign, error)
	ListCampaigns(ctx context.Context, programID string) ([]*Campaign, error)

	// Event audit trail
	SaveEvent(ctx context.Context, programID string, ev *Event) error
	GetEvent(ctx context.Context, programID string, eventID string) (*Event, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, programID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, programID string, evalID string) (*Evaluation, error)

	// Durable per-customer-per-rule usage counters. IncrementUsage performs
	// an atomic check-and-increment: it increments only while the stored
	// count is below limit and reports whether the increment happened.
	// A negative limit means unlimited.
	IncrementUsage(ctx context.Context, programID, ruleID, customerID string, limit int) (bool, error)
	GetUsage(ctx context.Context, programID, ruleID, customerID string) (int, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
