package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Column names are camelCase and quoted so the tables stay readable by
// any other service sharing this store.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(50) NOT NULL UNIQUE,
		password VARCHAR(255) NOT NULL,
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		id BIGSERIAL PRIMARY KEY,
		balance NUMERIC(14,2) NOT NULL DEFAULT 0,
		loan NUMERIC(14,2) NOT NULL DEFAULT 0,
		"userId" BIGINT NOT NULL REFERENCES users(id),
		"accountNumber" VARCHAR(10) NOT NULL UNIQUE,
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS user_transactions (
		id BIGSERIAL PRIMARY KEY,
		amount NUMERIC(14,2) NOT NULL,
		"userId" BIGINT REFERENCES users(id),
		type VARCHAR(10) NOT NULL CHECK (type IN ('fund', 'transfer', 'withdraw')),
		status VARCHAR(10) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'success', 'failed')),
		direction VARCHAR(6) NOT NULL CHECK (direction IN ('credit', 'debit')),
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS user_transactions_userid_idx ON user_transactions ("userId")`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		"sourceTransactionId" BIGINT REFERENCES user_transactions(id),
		"destinationTransactionId" BIGINT REFERENCES user_transactions(id),
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_source_idx ON transactions ("sourceTransactionId")`,
	`CREATE INDEX IF NOT EXISTS transactions_destination_idx ON transactions ("destinationTransactionId")`,
	`CREATE OR REPLACE FUNCTION touch_updated_at() RETURNS TRIGGER AS $$
	BEGIN
		NEW."updatedAt" = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DO $$
	DECLARE
		t TEXT;
	BEGIN
		FOREACH t IN ARRAY ARRAY['users', 'wallets', 'user_transactions', 'transactions'] LOOP
			IF NOT EXISTS (
				SELECT 1 FROM pg_trigger
				WHERE tgname = t || '_touch_updated_at'
			) THEN
				EXECUTE format(
					'CREATE TRIGGER %I BEFORE UPDATE ON %I FOR EACH ROW EXECUTE FUNCTION touch_updated_at()',
					t || '_touch_updated_at', t
				);
			END IF;
		END LOOP;
	END;
	$$`,
}

// EnsureSchema applies the idempotent DDL for the wallet ledger tables.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	log.Println("Database schema ensured")
	return nil
}
