package database

import (
	"database/sql"
	"fmt"
	"log"
)

// schema is applied on startup. Statements must stay idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id     TEXT PRIMARY KEY,
		balance     BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		version     INTEGER NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                  UUID PRIMARY KEY,
		user_id             TEXT NOT NULL REFERENCES accounts(user_id),
		driver_id           TEXT,
		source_event_id     TEXT,
		amount              BIGINT NOT NULL,
		category            TEXT NOT NULL,
		base_points         BIGINT NOT NULL DEFAULT 0,
		category_multiplier NUMERIC(6,2) NOT NULL DEFAULT 1,
		time_multiplier     NUMERIC(6,2) NOT NULL DEFAULT 1,
		vehicle_bonus       BIGINT NOT NULL DEFAULT 0,
		distance_bonus      BIGINT NOT NULL DEFAULT 0,
		emergency_type      TEXT,
		time_saved_seconds  INTEGER,
		distance_km         DOUBLE PRECISION,
		occurred_at         TIMESTAMPTZ NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_ledger_user_source UNIQUE (user_id, source_event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_user_occurred ON ledger_entries (user_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_user_category ON ledger_entries (user_id, category)`,
	`CREATE TABLE IF NOT EXISTS award_attempts (
		id               UUID PRIMARY KEY,
		user_id          TEXT NOT NULL,
		source_event_id  TEXT,
		category         TEXT NOT NULL,
		points_awarded   BIGINT NOT NULL,
		outcome          TEXT NOT NULL,
		ledger_entry_id  UUID,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS reward_definitions (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		point_cost        BIGINT NOT NULL CHECK (point_cost > 0),
		category          TEXT NOT NULL,
		value_description TEXT NOT NULL DEFAULT '',
		active            BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at        TIMESTAMPTZ,
		total_available   BIGINT,
		redeemed_count    BIGINT NOT NULL DEFAULT 0,
		max_per_user      BIGINT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (total_available IS NULL OR redeemed_count <= total_available)
	)`,
	`CREATE TABLE IF NOT EXISTS redemptions (
		id                UUID PRIMARY KEY,
		user_id           TEXT NOT NULL REFERENCES accounts(user_id),
		reward_id         TEXT NOT NULL REFERENCES reward_definitions(id),
		reward_name       TEXT NOT NULL,
		reward_value      TEXT NOT NULL,
		reward_category   TEXT NOT NULL,
		points_spent      BIGINT NOT NULL,
		code              TEXT NOT NULL,
		status            TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		expires_at        TIMESTAMPTZ NOT NULL,
		fulfilled_at      TIMESTAMPTZ,
		fulfillment_notes TEXT,
		cancelled_at      TIMESTAMPTZ,
		CONSTRAINT uq_redemption_code UNIQUE (code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_redemptions_user_reward ON redemptions (user_id, reward_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_redemptions_open_expiry ON redemptions (expires_at) WHERE status IN ('PENDING', 'APPROVED')`,
	`CREATE TABLE IF NOT EXISTS achievement_definitions (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		category          TEXT NOT NULL,
		requirement_type  TEXT NOT NULL,
		target            BIGINT NOT NULL CHECK (target > 0),
		action_key        TEXT NOT NULL,
		points            BIGINT NOT NULL DEFAULT 0,
		active            BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS achievement_progress (
		user_id         TEXT NOT NULL,
		achievement_id  TEXT NOT NULL REFERENCES achievement_definitions(id),
		progress        INTEGER NOT NULL DEFAULT 0,
		current_value   BIGINT NOT NULL DEFAULT 0,
		unlocked        BOOLEAN NOT NULL DEFAULT FALSE,
		unlocked_at     TIMESTAMPTZ,
		metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, achievement_id)
	)`,
}

// Migrate creates the rewards tables if they do not exist.
func Migrate(db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	log.Printf("Database schema applied (%d statements)", len(schema))
	return nil
}
