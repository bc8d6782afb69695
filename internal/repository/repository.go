// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loyaltylab/magpie/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers. Rules, campaigns, events,
// and evaluations are stored as whole JSON documents; only the columns
// queries filter on are broken out.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRule stores a rule document, last write wins.
func (r *SQLRepository) SaveRule(ctx context.Context, programID string, rule *domain.Rule) error {
	if programID == "" {
		return fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	doc, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to serialize rule %s: %w", rule.ID, err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO rules (
			id, program_id, name, enabled, document, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, program_id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			document = excluded.document,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, programID, rule.Name, enabled, string(doc),
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetRule retrieves a rule by ID with program isolation.
func (r *SQLRepository) GetRule(ctx context.Context, programID string, ruleID string) (*domain.Rule, error) {
	if programID == "" {
		return nil, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `SELECT document FROM rules WHERE program_id = ? AND id = ?`

	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(query), programID, ruleID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rule domain.Rule
	if err := json.Unmarshal([]byte(doc), &rule); err != nil {
		return nil, fmt.Errorf("failed to parse rule %s: %w", ruleID, err)
	}
	return &rule, nil
}

// ListRules retrieves all rules for a program, drafts included.
func (r *SQLRepository) ListRules(ctx context.Context, programID string) ([]*domain.Rule, error) {
	return r.listRules(ctx, programID, false)
}

// ListLiveRules retrieves only the live rules for a program. This is what
// the engine loads on startup and reload.
func (r *SQLRepository) ListLiveRules(ctx context.Context, programID string) ([]*domain.Rule, error) {
	return r.listRules(ctx, programID, true)
}

func (r *SQLRepository) listRules(ctx context.Context, programID string, liveOnly bool) ([]*domain.Rule, error) {
	if programID == "" {
		return nil, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `SELECT document FROM rules WHERE program_id = ?`
	if liveOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rule domain.Rule
		if err := json.Unmarshal([]byte(doc), &rule); err != nil {
			return nil, fmt.Errorf("failed to parse rule document: %w", err)
		}
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteRule removes a rule. Campaign references to the rule are left in
// place and treated as dangling by readers.
func (r *SQLRepository) DeleteRule(ctx context.Context, programID string, ruleID string) error {
	if programID == "" {
		return fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `DELETE FROM rules WHERE program_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), programID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveCampaign stores a campaign document.
func (r *SQLRepository) SaveCampaign(ctx context.Context, programID string, c *domain.Campaign) error {
	if programID == "" {
		return fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize campaign %s: %w", c.ID, err)
	}

	enabled := 0
	if c.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO campaigns (
			id, program_id, name, enabled, document, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, program_id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			document = excluded.document,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		c.ID, programID, c.Name, enabled, string(doc), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetCampaign retrieves a campaign by ID with program isolation.
func (r *SQLRepository) GetCampaign(ctx context.Context, programID string, campaignID string) (*domain.Campaign, error) {
	if programID == "" {
		return nil, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `SELECT document FROM campaigns WHERE program_id = ? AND id = ?`

	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(query), programID, campaignID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var c domain.Campaign
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to parse campaign %s: %w", campaignID, err)
	}
	return &c, nil
}

// ListCampaigns retrieves all campaigns for a program.
func (r *SQLRepository) ListCampaigns(ctx context.Context, programID string) ([]*domain.Campaign, error) {
	if programID == "" {
		return nil, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `SELECT document FROM campaigns WHERE program_id = ? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var c domain.Campaign
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("failed to parse campaign document: %w", err)
		}
		campaigns = append(campaigns, &c)
	}

	return campaigns, rows.Err()
}

// SaveEvent appends an event to the audit trail.
func (r *SQLRepository) SaveEvent(ctx context.Context, programID string, ev *domain.Event) error {
	if programID == "" {
		return fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", ev.ID, err)
	}

	query := `
		INSERT INTO events (
			id, program_id, customer_id, type, document, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		ev.ID, programID, ev.CustomerID, string(ev.Type), string(doc), ev.Timestamp,
	)
	return err
}

// GetEvent retrieves an event by ID with program isolation.
func (r *SQLRepository) GetEvent(ctx context.Context, programID string, eventID string) (*domain.Event, error) {
	if programID == "" {
		return nil, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `SELECT document FROM events WHERE program_id = ? AND id = ?`

	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(query), programID, eventID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var ev domain.Event
	if err := json.Unmarshal([]byte(doc), &ev); err != nil {
		return nil, fmt.Errorf("failed to parse event %s: %w", eventID, err)
	}
	return &ev, nil
}

// SaveEvaluation stores an evaluation result with program isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, programID string, eval *domain.Evaluation) error {
	if programID == "" {
		return fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	results, _ := json.Marshal(eval.Results)
	plans, _ := json.Marshal(eval.Plans)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (
			id, program_id, event_id, customer_id, status,
			results, plans, metadata, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, programID, eval.EventID, eval.CustomerID, eval.Status,
		string(results), string(plans), string(metadata), eval.Timestamp,
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with program isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, programID string, evalID string) (*domain.Evaluation, error) {
	if programID == "" {
		return nil, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, program_id, event_id, customer_id, status,
			   results, plans, metadata, timestamp
		FROM evaluations
		WHERE program_id = ? AND id = ?
	`

	var eval domain.Evaluation
	var results, plans, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), programID, evalID).Scan(
		&eval.ID, &eval.ProgramID, &eval.EventID, &eval.CustomerID, &eval.Status,
		&results, &plans, &metadata, &eval.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(results), &eval.Results)
	json.Unmarshal([]byte(plans), &eval.Plans)
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}

// IncrementUsage atomically increments the customer's grant counter for a
// rule while it is below limit. The conditional UPSERT and the RowsAffected
// check make concurrent evaluations race-safe: with limit 1, exactly one of
// two concurrent calls wins.
func (r *SQLRepository) IncrementUsage(ctx context.Context, programID, ruleID, customerID string, limit int) (bool, error) {
	if programID == "" {
		return false, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	if limit < 0 {
		query := `
			INSERT INTO usage_counters (program_id, rule_id, customer_id, uses, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(program_id, rule_id, customer_id) DO UPDATE SET
				uses = usage_counters.uses + 1,
				updated_at = excluded.updated_at
		`
		_, err := r.db.ExecContext(ctx, r.rebind(query), programID, ruleID, customerID, now)
		return err == nil, err
	}

	if limit == 0 {
		return false, nil
	}

	query := `
		INSERT INTO usage_counters (program_id, rule_id, customer_id, uses, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(program_id, rule_id, customer_id) DO UPDATE SET
			uses = usage_counters.uses + 1,
			updated_at = excluded.updated_at
		WHERE usage_counters.uses < ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), programID, ruleID, customerID, now, limit)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetUsage returns the customer's grant count for a rule, zero if absent.
func (r *SQLRepository) GetUsage(ctx context.Context, programID, ruleID, customerID string) (int, error) {
	if programID == "" {
		return 0, fmt.Errorf("%w: programID is required", ErrInvalidInput)
	}

	query := `
		SELECT uses FROM usage_counters
		WHERE program_id = ? AND rule_id = ? AND customer_id = ?
	`

	var uses int
	err := r.db.QueryRowContext(ctx, r.rebind(query), programID, ruleID, customerID).Scan(&uses)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uses, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
