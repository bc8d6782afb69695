package repository

// Schema definitions for the Magpie database.
// Compatible with both SQLite and PostgreSQL.

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    program_id TEXT NOT NULL,
    name TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 0,
    document TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, program_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_program ON rules(program_id);
CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rules(program_id, enabled);
`

const schemaCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT NOT NULL,
    program_id TEXT NOT NULL,
    name TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    document TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, program_id)
);

CREATE INDEX IF NOT EXISTS idx_campaigns_program ON campaigns(program_id);
`

const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT NOT NULL,
    program_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    type TEXT NOT NULL,
    document TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (id, program_id)
);

CREATE INDEX IF NOT EXISTS idx_events_program ON events(program_id);
CREATE INDEX IF NOT EXISTS idx_events_customer ON events(program_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(program_id, timestamp);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT NOT NULL,
    program_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    status TEXT NOT NULL,
    results TEXT NOT NULL,
    plans TEXT,
    metadata TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (id, program_id)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_program ON evaluations(program_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_event ON evaluations(program_id, event_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_customer ON evaluations(program_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(program_id, status);
`

// schemaUsageCounters backs the per-customer-per-rule grant counters. The
// check-and-increment runs as a single conditional UPSERT so two concurrent
// evaluations cannot both pass a limit of one.
const schemaUsageCounters = `
CREATE TABLE IF NOT EXISTS usage_counters (
    program_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    uses INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (program_id, rule_id, customer_id)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRules,
		schemaCampaigns,
		schemaEvents,
		schemaEvaluations,
		schemaUsageCounters,
	}
}
