package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the postgres migrations for local runs and tests.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT,
		phone TEXT,
		verified BOOLEAN NOT NULL DEFAULT 0,
		verified_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS packages (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC(20,2) NOT NULL,
		duration_days INTEGER NOT NULL,
		daily_reward_multiplier NUMERIC(10,4),
		level INTEGER NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL UNIQUE,
		sponsor_id INTEGER,
		parent_id INTEGER,
		position TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'INACTIVE',
		available_balance NUMERIC(20,2) NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		referral_code TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (parent_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS node_packages (
		id INTEGER PRIMARY KEY,
		node_id INTEGER NOT NULL UNIQUE,
		package_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		activated_at DATETIME,
		expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS node_payments (
		id INTEGER PRIMARY KEY,
		node_id INTEGER NOT NULL,
		package_id INTEGER NOT NULL,
		amount NUMERIC(20,2) NOT NULL,
		external_tx_id TEXT NOT NULL UNIQUE,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		phone TEXT,
		reference TEXT,
		failure_reason TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS node_statements (
		id INTEGER PRIMARY KEY,
		node_id INTEGER NOT NULL,
		amount NUMERIC(20,2) NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		reference_id INTEGER NOT NULL,
		balance_after NUMERIC(20,2) NOT NULL,
		description TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS commissions (
		id INTEGER PRIMARY KEY,
		recipient_user_id INTEGER NOT NULL,
		recipient_node_id INTEGER NOT NULL,
		source_user_id INTEGER NOT NULL,
		source_node_id INTEGER NOT NULL,
		package_id INTEGER NOT NULL,
		payment_id INTEGER,
		statement_id INTEGER NOT NULL,
		level INTEGER NOT NULL,
		type TEXT NOT NULL,
		amount NUMERIC(20,2) NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payment_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// ApplySQLiteSchema creates every table on a sqlite connection.
func ApplySQLiteSchema(ctx context.Context, db *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
