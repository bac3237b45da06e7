package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the full write-behind schema. Every statement is
// idempotent so Migrate can run unconditionally on startup.
const schema = `
CREATE TABLE IF NOT EXISTS patients (
    pid            VARCHAR(8) PRIMARY KEY,
    token          VARCHAR(16) NOT NULL,
    first_name     TEXT NOT NULL,
    last_name      TEXT NOT NULL DEFAULT '',
    phone          TEXT NOT NULL DEFAULT '',
    dob            TEXT NOT NULL DEFAULT '',
    symptoms       TEXT NOT NULL,
    duration_text  TEXT NOT NULL DEFAULT '',
    arrival_window VARCHAR(8) NOT NULL DEFAULT 'now',
    assessment     JSONB,
    status         VARCHAR(16) NOT NULL DEFAULT 'pending',
    priority       VARCHAR(8) NOT NULL DEFAULT 'low',
    emergency_type TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    checked_in_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS vitals (
    id         BIGSERIAL PRIMARY KEY,
    pid        VARCHAR(8) NOT NULL,
    token      VARCHAR(16) NOT NULL DEFAULT '',
    device_id  TEXT NOT NULL DEFAULT '',
    spo2       DOUBLE PRECISION,
    hr         DOUBLE PRECISION,
    temp_c     DOUBLE PRECISION,
    bp_sys     DOUBLE PRECISION,
    bp_dia     DOUBLE PRECISION,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    ts         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    simulated  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_vitals_pid_id ON vitals (pid, id DESC);

CREATE TABLE IF NOT EXISTS queue_events (
    id         BIGSERIAL PRIMARY KEY,
    event_type VARCHAR(32) NOT NULL,
    pid        VARCHAR(8) NOT NULL DEFAULT '',
    token      VARCHAR(16) NOT NULL DEFAULT '',
    payload    JSONB,
    ts         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_events (
    id         BIGSERIAL PRIMARY KEY,
    event_type VARCHAR(32) NOT NULL,
    details    JSONB,
    ts         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the write-behind tables if they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
