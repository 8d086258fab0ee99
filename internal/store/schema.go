package store

// Migrations returns the schema migration statements. Each string is a
// single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			name          TEXT NOT NULL,
			currency      TEXT NOT NULL DEFAULT 'USD',
			balance_cents INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_id)`,

		// One row per occurrence, not per series. A series is linked only
		// by shared display fields and the rolling recurrence rule.
		`CREATE TABLE IF NOT EXISTS commitments (
			id               TEXT PRIMARY KEY,
			owner_id         TEXT NOT NULL,
			account_id       TEXT NOT NULL,
			name             TEXT NOT NULL,
			category         TEXT NOT NULL,
			amount_cents     INTEGER NOT NULL,
			currency         TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'pending',
			due_date         TEXT NOT NULL,
			paid_at          TEXT,
			is_recurring     INTEGER NOT NULL DEFAULT 0,
			note             TEXT NOT NULL DEFAULT '',
			rule_frequency   TEXT,
			rule_interval    INTEGER,
			rule_by_weekday  TEXT,
			rule_by_monthday TEXT,
			rule_start_date  TEXT,
			rule_end_date    TEXT,
			rule_remaining   INTEGER,
			created_at       TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commitments_owner ON commitments(owner_id, due_date)`,
		// Covers the series dedupe/sibling scans.
		`CREATE INDEX IF NOT EXISTS idx_commitments_series
			ON commitments(owner_id, account_id, name, status, due_date)`,
	}
}
