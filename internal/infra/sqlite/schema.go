package sqlite

import "database/sql"

// schema is applied on every open; statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	lead_number TEXT NOT NULL UNIQUE,
	project_name TEXT NOT NULL,
	deal_type TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	stage TEXT NOT NULL,
	sub_stage TEXT NOT NULL DEFAULT '',
	stage_entered_at TEXT NOT NULL,
	temperature INTEGER NOT NULL DEFAULT 0,
	temperature_status TEXT NOT NULL,
	probability INTEGER NOT NULL DEFAULT 0,
	estimated_value TEXT NOT NULL DEFAULT '0',
	quoted_value TEXT,
	final_value TEXT,
	currency TEXT NOT NULL DEFAULT 'USD',
	won_at TEXT,
	lost_at TEXT,
	lost_reason TEXT NOT NULL DEFAULT '',
	lost_competitor TEXT NOT NULL DEFAULT '',
	lost_notes TEXT NOT NULL DEFAULT '',
	assigned_to TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	customer_id TEXT NOT NULL DEFAULT '',
	canvassing_report_id TEXT NOT NULL DEFAULT '',
	contact_name TEXT NOT NULL DEFAULT '',
	contact_phone TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	expected_close_date TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
CREATE INDEX IF NOT EXISTS idx_leads_assigned_to ON leads(assigned_to);
CREATE INDEX IF NOT EXISTS idx_leads_customer_id ON leads(customer_id);

CREATE TABLE IF NOT EXISTS lead_activities (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT '',
	next_action TEXT NOT NULL DEFAULT '',
	next_action_date TEXT,
	temperature_impact INTEGER NOT NULL DEFAULT 0,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lead_activities_lead ON lead_activities(lead_id, created_at);

CREATE TABLE IF NOT EXISTS lead_sequence (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	value INTEGER NOT NULL
);

INSERT OR IGNORE INTO lead_sequence (id, value) VALUES (1, 0);

CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`

func initSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
