package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Table names.
const (
	TableCategories = "categories"
	TableExpenses   = "expenses"
	TableIncome     = "income"
)

// schemaVersion is stored in PRAGMA user_version. Any other value found on
// open drops every table and recreates the schema; no data is carried over.
const schemaVersion = 1

var schemaDDL = []string{
	`CREATE TABLE categories (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		name  TEXT NOT NULL,
		emoji TEXT NOT NULL
	)`,
	`CREATE TABLE expenses (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		category_type  TEXT NOT NULL,
		amount         TEXT NOT NULL,
		note           TEXT NOT NULL DEFAULT '',
		date           TEXT NOT NULL,
		category_name  TEXT NOT NULL,
		category_emoji TEXT NOT NULL
	)`,
	`CREATE INDEX idx_expenses_date ON expenses(date)`,
	`CREATE TABLE income (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		category_type  TEXT NOT NULL,
		amount         TEXT NOT NULL,
		note           TEXT NOT NULL DEFAULT '',
		date           TEXT NOT NULL,
		category_name  TEXT NOT NULL,
		category_emoji TEXT NOT NULL
	)`,
	`CREATE INDEX idx_income_date ON income(date)`,
}

func migrate(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current == schemaVersion {
		return nil
	}
	if current != 0 {
		log.Warn().
			Int("found", current).
			Int("want", schemaVersion).
			Msg("Schema version mismatch, recreating database tables")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{TableCategories, TableExpenses, TableIncome} {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	for _, stmt := range schemaDDL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
