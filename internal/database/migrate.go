package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Schema statements are idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'shopkeeper', 'customer')),
		full_name TEXT,
		phone TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL UNIQUE REFERENCES users(id),
		credit_limit NUMERIC(12,2) NOT NULL DEFAULT 0,
		current_credit NUMERIC(12,2) NOT NULL DEFAULT 0,
		address TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES users(id),
		shopkeeper_id INTEGER REFERENCES users(id),
		order_type TEXT NOT NULL CHECK (order_type IN ('remote', 'at_shop')),
		total_amount NUMERIC(12,2) NOT NULL,
		credit_amount NUMERIC(12,2) NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'rejected', 'completed')),
		items TEXT,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_records (
		id SERIAL PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES users(id),
		order_id INTEGER REFERENCES orders(id),
		amount NUMERIC(12,2) NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('credit', 'payment')),
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		order_id INTEGER REFERENCES orders(id),
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_records_customer ON credit_records (customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (user_id, created_at DESC)`,
}

// Migrate creates the schema and seeds the default admin account.
func Migrate(db *sql.DB, adminPassword string) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	var exists bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM users WHERE role = 'admin')`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("admin check failed: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(
		`INSERT INTO users (username, email, password, role, full_name) VALUES ($1, $2, $3, $4, $5)`,
		"admin", "admin@creditkeeper.com", adminPassword, "admin", "System Admin")
	if err != nil {
		return fmt.Errorf("admin bootstrap failed: %w", err)
	}

	log.Println("Default admin created: username=admin")
	return nil
}
