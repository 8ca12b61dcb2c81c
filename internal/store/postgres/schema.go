package postgres

import (
	"context"
	"fmt"
)

// schema is the full DDL. Applied idempotently on startup; there is no
// separate migration tool in this deployment.
const schema = `
CREATE TABLE IF NOT EXISTS borrowers (
	id                BIGSERIAL PRIMARY KEY,
	identifier        TEXT NOT NULL UNIQUE,
	legal_name        TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	legal_identifier  TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL DEFAULT '',
	sector            TEXT NOT NULL DEFAULT '',
	size              TEXT NOT NULL DEFAULT 'NOT_INFORMED',
	status            TEXT NOT NULL DEFAULT 'ACTIVE',
	source_data       JSONB,
	missing_data      JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	declined_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS lenders (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	email_group TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT '',
	sla_days    INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS awards (
	id                     BIGSERIAL PRIMARY KEY,
	borrower_id            BIGINT REFERENCES borrowers(id),
	source_contract_id     TEXT NOT NULL UNIQUE,
	title                  TEXT NOT NULL DEFAULT '',
	description            TEXT NOT NULL DEFAULT '',
	award_date             TIMESTAMPTZ,
	award_amount           NUMERIC(16,2) NOT NULL DEFAULT 0,
	award_currency         TEXT NOT NULL DEFAULT 'COP',
	contract_start_date    TIMESTAMPTZ,
	contract_end_date      TIMESTAMPTZ,
	payment_method         JSONB,
	buyer_name             TEXT NOT NULL DEFAULT '',
	source_url             TEXT NOT NULL DEFAULT '',
	entity_code            TEXT NOT NULL DEFAULT '',
	contract_status        TEXT NOT NULL DEFAULT '',
	source_last_updated_at TIMESTAMPTZ,
	previous               BOOLEAN NOT NULL DEFAULT FALSE,
	procurement_method     TEXT NOT NULL DEFAULT '',
	contracting_process_id TEXT NOT NULL DEFAULT '',
	procurement_category   TEXT NOT NULL DEFAULT '',
	source_data            JSONB,
	missing_data           JSONB,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_awards_last_updated
	ON awards (source_last_updated_at) WHERE previous = FALSE;

CREATE TABLE IF NOT EXISTS applications (
	id                        BIGSERIAL PRIMARY KEY,
	access_token              TEXT NOT NULL UNIQUE,
	dedup_key                 TEXT NOT NULL UNIQUE,
	status                    TEXT NOT NULL DEFAULT 'PENDING',
	award_id                  BIGINT NOT NULL REFERENCES awards(id),
	borrower_id               BIGINT NOT NULL REFERENCES borrowers(id),
	lender_id                 BIGINT REFERENCES lenders(id),
	credit_product_id         BIGINT,
	primary_email             TEXT NOT NULL DEFAULT '',
	amount_requested          NUMERIC(16,2),
	contract_amount_submitted NUMERIC(16,2),
	disbursed_final_amount    NUMERIC(16,2),
	currency                  TEXT NOT NULL DEFAULT 'COP',
	calculator_data           JSONB,
	declined_data             JSONB,
	pending_documents         BOOLEAN NOT NULL DEFAULT FALSE,
	expired_at                TIMESTAMPTZ,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	accepted_at               TIMESTAMPTZ,
	declined_at               TIMESTAMPTZ,
	submitted_at              TIMESTAMPTZ,
	lender_started_at         TIMESTAMPTZ,
	information_requested_at  TIMESTAMPTZ,
	approved_at               TIMESTAMPTZ,
	rejected_at               TIMESTAMPTZ,
	contract_uploaded_at      TIMESTAMPTZ,
	completed_at              TIMESTAMPTZ,
	lapsed_at                 TIMESTAMPTZ,
	overdued_at               TIMESTAMPTZ,
	archived_at               TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_applications_status
	ON applications (status) WHERE archived_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_applications_borrower
	ON applications (borrower_id);

CREATE TABLE IF NOT EXISTS messages (
	id                  BIGSERIAL PRIMARY KEY,
	type                TEXT NOT NULL,
	application_id      BIGINT NOT NULL REFERENCES applications(id),
	lender_id           BIGINT REFERENCES lenders(id),
	external_message_id TEXT NOT NULL DEFAULT '',
	body                TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_application_type
	ON messages (application_id, type);

CREATE TABLE IF NOT EXISTS application_actions (
	id             BIGSERIAL PRIMARY KEY,
	type           TEXT NOT NULL,
	application_id BIGINT NOT NULL REFERENCES applications(id),
	user_id        BIGINT,
	data           JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_actions_application_type
	ON application_actions (application_id, type, created_at);

CREATE TABLE IF NOT EXISTS borrower_documents (
	id             BIGSERIAL PRIMARY KEY,
	application_id BIGINT NOT NULL REFERENCES applications(id),
	type           TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	verified       BOOLEAN NOT NULL DEFAULT FALSE,
	file           BYTEA,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	submitted_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS statistics (
	id         BIGSERIAL PRIMARY KEY,
	type       TEXT NOT NULL,
	lender_id  BIGINT REFERENCES lenders(id),
	lender_key BIGINT NOT NULL DEFAULT 0,
	day        TIMESTAMPTZ NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (day, type, lender_key)
);
`

// EnsureSchema creates every table and index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
