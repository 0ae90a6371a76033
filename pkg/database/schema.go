package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	tables := []string{
		createUsersTable,
		createVisitsTable,
		createCheckoutSessionsTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createUsersIndexes,
		createVisitsIndexes,
		createCheckoutSessionsIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email VARCHAR(255) UNIQUE NOT NULL,
	name VARCHAR(255) NOT NULL,
	role VARCHAR(32) NOT NULL DEFAULT 'patient',
	password_hash VARCHAR(255) NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createVisitsTable = `
CREATE TABLE IF NOT EXISTS visits (
	id UUID PRIMARY KEY,
	patient_id UUID NOT NULL REFERENCES users(id),
	provider_id UUID REFERENCES users(id),
	reason TEXT NOT NULL,
	questionnaire_answers JSONB,
	is_ai_visit BOOLEAN NOT NULL DEFAULT FALSE,
	payment_status VARCHAR(16) NOT NULL DEFAULT 'unpaid',
	visit_status VARCHAR(16) NOT NULL DEFAULT 'scheduled',
	soap_note TEXT,
	summary TEXT,
	action_items JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createCheckoutSessionsTable = `
CREATE TABLE IF NOT EXISTS checkout_sessions (
	id VARCHAR(255) PRIMARY KEY,
	visit_id UUID REFERENCES visits(id),
	user_id UUID NOT NULL,
	mode VARCHAR(16) NOT NULL,
	status VARCHAR(32) NOT NULL,
	price_ref VARCHAR(255) NOT NULL,
	url TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createUsersIndexes = `
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);`

const createVisitsIndexes = `
CREATE INDEX IF NOT EXISTS idx_visits_patient ON visits(patient_id);
CREATE INDEX IF NOT EXISTS idx_visits_provider ON visits(provider_id);
CREATE INDEX IF NOT EXISTS idx_visits_status ON visits(visit_status);
CREATE INDEX IF NOT EXISTS idx_visits_payment_status ON visits(payment_status);`

const createCheckoutSessionsIndexes = `
CREATE INDEX IF NOT EXISTS idx_checkout_sessions_visit ON checkout_sessions(visit_id);
CREATE INDEX IF NOT EXISTS idx_checkout_sessions_user ON checkout_sessions(user_id);`
