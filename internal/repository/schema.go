package repository

const schema = `
CREATE SCHEMA IF NOT EXISTS tracker;

CREATE TABLE IF NOT EXISTS tracker.users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tracker.obligations (
	id                   UUID PRIMARY KEY,
	kind                 TEXT NOT NULL,
	title                TEXT NOT NULL,
	notes                TEXT NOT NULL DEFAULT '',
	amount               NUMERIC(18,2) NOT NULL,
	currency_code        CHAR(3) NOT NULL,
	frequency            TEXT NOT NULL,
	start_date           TIMESTAMPTZ NOT NULL,
	end_date             TIMESTAMPTZ,
	period_count         INTEGER NOT NULL DEFAULT 0,
	interest_mode        TEXT NOT NULL DEFAULT 'none',
	interest_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	interest_fixed_total NUMERIC(18,2),
	total_payable        NUMERIC(18,2) NOT NULL DEFAULT 0,
	periodic_amount      NUMERIC(18,2) NOT NULL DEFAULT 0,
	next_due_date        TIMESTAMPTZ,
	total_settled        NUMERIC(18,2) NOT NULL DEFAULT 0,
	remaining_to_pay     NUMERIC(18,2) NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tracker.occurrences (
	id            UUID PRIMARY KEY,
	obligation_id UUID NOT NULL REFERENCES tracker.obligations(id) ON DELETE CASCADE,
	due_date      TIMESTAMPTZ NOT NULL,
	amount        NUMERIC(18,2) NOT NULL,
	status        TEXT NOT NULL,
	settled_date  TIMESTAMPTZ,
	snooze_until  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS occurrences_obligation_due_idx ON tracker.occurrences (obligation_id, due_date);

CREATE TABLE IF NOT EXISTS tracker.reminders (
	id            UUID PRIMARY KEY,
	occurrence_id UUID NOT NULL REFERENCES tracker.occurrences(id) ON DELETE CASCADE,
	fire_at       TIMESTAMPTZ NOT NULL,
	label         TEXT NOT NULL,
	sent_at       TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS reminders_pending_idx ON tracker.reminders (fire_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS tracker.settings (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	lead_time_days   INTEGER NOT NULL,
	default_currency CHAR(3) NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
`
