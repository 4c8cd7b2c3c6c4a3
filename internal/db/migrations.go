package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'claim_submission_state') THEN
			CREATE TYPE claim_submission_state AS ENUM ('SUBMITTED_UNAPPROVED', 'APPROVED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS claim_submission (
		id UUID PRIMARY KEY,
		claim_id VARCHAR(78) NOT NULL,
		organization VARCHAR(42) NOT NULL,
		project_name TEXT NOT NULL,
		acres BIGINT NOT NULL,
		demanded_tokens BIGINT NOT NULL,
		predicted_tokens BIGINT NOT NULL,
		awarded_tokens BIGINT NOT NULL,
		oracle_degraded BOOLEAN NOT NULL DEFAULT FALSE,
		evidence_hash TEXT NOT NULL DEFAULT '',
		submitted_by TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL,
		state claim_submission_state NOT NULL DEFAULT 'SUBMITTED_UNAPPROVED',
		submit_tx_hash VARCHAR(66) NOT NULL,
		approve_tx_hash VARCHAR(66),
		failure_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_claim_submission_claim_id ON claim_submission (claim_id);`,
	`CREATE INDEX IF NOT EXISTS idx_claim_submission_state ON claim_submission (state);`,
	`CREATE INDEX IF NOT EXISTS idx_claim_submission_organization ON claim_submission (organization);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
