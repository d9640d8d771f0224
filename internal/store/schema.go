// internal/store/schema.go
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements applied at startup. The partial unique index is the hard
// guarantee behind the one-active-application-per-type rule; concurrent
// submissions that slip past the advisory lock still collide here.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id          UUID PRIMARY KEY,
		email       TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		role        TEXT NOT NULL DEFAULT 'user',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS applications (
		id               UUID PRIMARY KEY,
		applicant_id     UUID NOT NULL REFERENCES accounts(id),
		application_type TEXT NOT NULL,
		status           TEXT NOT NULL,
		version          INTEGER NOT NULL,
		profile          JSONB NOT NULL DEFAULT '{}',
		documents        JSONB NOT NULL DEFAULT '[]',
		admin_review     JSONB,
		submitted_at     TIMESTAMPTZ NOT NULL,
		reviewed_at      TIMESTAMPTZ,
		approved_at      TIMESTAMPTZ,
		rejected_at      TIMESTAMPTZ,
		suspended_at     TIMESTAMPTZ,
		is_active        BOOLEAN NOT NULL DEFAULT true,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		UNIQUE (applicant_id, application_type, version)
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS applications_one_active_idx
		ON applications (applicant_id, application_type)
		WHERE status IN ('pending', 'under_review', 'approved')`,

	`CREATE INDEX IF NOT EXISTS applications_status_idx
		ON applications (status, application_type)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id             UUID PRIMARY KEY,
		recipient_id   UUID NOT NULL,
		recipient_type TEXT NOT NULL,
		type           TEXT NOT NULL,
		channel        TEXT NOT NULL,
		status         TEXT NOT NULL,
		payload        JSONB NOT NULL DEFAULT '{}',
		sent_at        TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id            BIGSERIAL PRIMARY KEY,
		event_type    TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT NOT NULL,
		details       JSONB NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
