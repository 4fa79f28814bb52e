package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for the scheduling core
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	tables := []string{
		createClientsTable,
		createCaregiversTable,
		createAvailabilityTable,
		createShiftsTable,
		createConflictsTable,
		createResolutionHistoryTable,
		createMatchingHistoryTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createShiftsIndexes,
		createConflictsIndexes,
		createHistoryIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

const createClientsTable = `
CREATE TABLE IF NOT EXISTS clients (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	address JSONB NOT NULL DEFAULT '{}',
	care_needs JSONB NOT NULL DEFAULT '[]',
	transportation JSONB NOT NULL DEFAULT '{}',
	preferred_hours JSONB NOT NULL DEFAULT '[]',
	preferred_language VARCHAR(64) NOT NULL DEFAULT '',
	preferred_gender VARCHAR(32) NOT NULL DEFAULT '',
	service_status VARCHAR(16) NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createCaregiversTable = `
CREATE TABLE IF NOT EXISTS caregivers (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL DEFAULT '',
	phone VARCHAR(64) NOT NULL DEFAULT '',
	address JSONB NOT NULL DEFAULT '{}',
	skills JSONB NOT NULL DEFAULT '[]',
	transportation JSONB NOT NULL DEFAULT '{}',
	years_experience INTEGER NOT NULL DEFAULT 0,
	certifications JSONB NOT NULL DEFAULT '[]',
	languages JSONB NOT NULL DEFAULT '[]',
	gender VARCHAR(32) NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createAvailabilityTable = `
CREATE TABLE IF NOT EXISTS caregiver_availability (
	caregiver_id VARCHAR(64) PRIMARY KEY REFERENCES caregivers(id) ON DELETE CASCADE,
	regular_schedule JSONB NOT NULL DEFAULT '[]',
	time_off JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createShiftsTable = `
CREATE TABLE IF NOT EXISTS shifts (
	id VARCHAR(64) PRIMARY KEY,
	client_id VARCHAR(64) NOT NULL REFERENCES clients(id),
	caregiver_id VARCHAR(64) NOT NULL DEFAULT '',
	shift_date DATE NOT NULL,
	start_time VARCHAR(5) NOT NULL,
	end_time VARCHAR(5) NOT NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'needs_assignment',
	is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
	day_of_week INTEGER,
	recurrence VARCHAR(16) NOT NULL DEFAULT '',
	recurrence_start DATE,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createConflictsTable = `
CREATE TABLE IF NOT EXISTS conflicts (
	id VARCHAR(16) PRIMARY KEY,
	shift_ids JSONB NOT NULL,
	type VARCHAR(32) NOT NULL,
	severity INTEGER NOT NULL,
	client_id VARCHAR(64) NOT NULL DEFAULT '',
	caregiver_ids JSONB NOT NULL DEFAULT '[]',
	description TEXT NOT NULL DEFAULT '',
	detected_at TIMESTAMPTZ NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'pending',
	resolved_at TIMESTAMPTZ
);`

const createResolutionHistoryTable = `
CREATE TABLE IF NOT EXISTS resolution_history (
	id VARCHAR(64) PRIMARY KEY,
	conflict_id VARCHAR(16) NOT NULL,
	method VARCHAR(16) NOT NULL,
	option_id VARCHAR(16) NOT NULL DEFAULT '',
	resolved_by VARCHAR(64) NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	resolved_at TIMESTAMPTZ NOT NULL,
	shift_snapshot JSONB NOT NULL DEFAULT '[]'
);`

const createMatchingHistoryTable = `
CREATE TABLE IF NOT EXISTS matching_history (
	id VARCHAR(64) PRIMARY KEY,
	shift_id VARCHAR(64) NOT NULL,
	client_id VARCHAR(64) NOT NULL,
	old_caregiver_id VARCHAR(64) NOT NULL DEFAULT '',
	new_caregiver_id VARCHAR(64) NOT NULL,
	old_status VARCHAR(32) NOT NULL,
	manual BOOLEAN NOT NULL DEFAULT FALSE,
	applied_by VARCHAR(64) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL,
	reverted BOOLEAN NOT NULL DEFAULT FALSE,
	reverted_at TIMESTAMPTZ,
	reverted_by VARCHAR(64) NOT NULL DEFAULT ''
);`

const createShiftsIndexes = `
CREATE INDEX IF NOT EXISTS idx_shifts_caregiver_date ON shifts(caregiver_id, shift_date);
CREATE INDEX IF NOT EXISTS idx_shifts_client_date ON shifts(client_id, shift_date);
CREATE INDEX IF NOT EXISTS idx_shifts_status ON shifts(status);`

const createConflictsIndexes = `
CREATE INDEX IF NOT EXISTS idx_conflicts_status ON conflicts(status);
CREATE INDEX IF NOT EXISTS idx_conflicts_detected_at ON conflicts(detected_at);`

const createHistoryIndexes = `
CREATE INDEX IF NOT EXISTS idx_resolution_history_conflict ON resolution_history(conflict_id);
CREATE INDEX IF NOT EXISTS idx_matching_history_shift ON matching_history(shift_id);`
