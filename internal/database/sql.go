package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the driver and schema flavor.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Open connects to the relational store and creates the schema if it is
// missing. SQLite is limited to a single connection so ":memory:" databases
// stay shared across calls.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case DialectSQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	if dialect == DialectSQLite {
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, err
			}
		}
	}

	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Migrate creates all tables and indexes if they don't exist. Amounts are
// stored as integer cents in both dialects; SQLite would otherwise coerce
// decimal text to REAL.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	queries := postgresSchema
	if dialect == DialectSQLite {
		queries = sqliteSchema
	}
	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		username VARCHAR(30) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		first_name VARCHAR(50) NOT NULL,
		last_name VARCHAR(50) NOT NULL,
		phone TEXT,
		profile_picture_url TEXT,
		locale VARCHAR(35),
		timezone VARCHAR(64),
		account_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		account_locked BOOLEAN NOT NULL DEFAULT FALSE,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0 CHECK (failed_login_attempts >= 0),
		locked_until TIMESTAMPTZ,
		last_login_at TIMESTAMPTZ,
		terms_accepted_at TIMESTAMPTZ,
		privacy_policy_accepted_at TIMESTAMPTZ,
		password_changed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_users_email UNIQUE (email),
		CONSTRAINT uq_users_username UNIQUE (username)
	)`,

	`CREATE TABLE IF NOT EXISTS expenses (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		description VARCHAR(255) NOT NULL,
		amount_cents BIGINT NOT NULL CHECK (amount_cents >= 1),
		expense_date DATE NOT NULL,
		category VARCHAR(32) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, expense_date)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_category ON expenses(user_id, category)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_created ON expenses(user_id, created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT,
		profile_picture_url TEXT,
		locale TEXT,
		timezone TEXT,
		account_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		account_locked BOOLEAN NOT NULL DEFAULT FALSE,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0 CHECK (failed_login_attempts >= 0),
		locked_until TIMESTAMP,
		last_login_at TIMESTAMP,
		terms_accepted_at TIMESTAMP,
		privacy_policy_accepted_at TIMESTAMP,
		password_changed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CONSTRAINT uq_users_email UNIQUE (email),
		CONSTRAINT uq_users_username UNIQUE (username)
	)`,

	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		amount_cents INTEGER NOT NULL CHECK (amount_cents >= 1),
		expense_date DATE NOT NULL,
		category TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, expense_date)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_category ON expenses(user_id, category)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_created ON expenses(user_id, created_at)`,
}
