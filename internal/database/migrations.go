package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// EnsureSchema creates every table and index the store needs. Statements use
// IF NOT EXISTS and applied versions are recorded, so running it again is a
// no-op. Any failure is a KindSchema error.
func (db *DB) EnsureSchema() error {
	log.Info().Msg("Ensuring database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return schemaError("create migrations table", err)
	}

	row, err := db.QueryRow("SELECT COALESCE(MAX(version), 0) AS version FROM schema_migrations")
	if err != nil {
		return schemaError("read schema version", err)
	}
	currentVersion := int(row.Int64("version"))

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		err := db.Transaction(func(tx *Tx) error {
			for i, stmt := range splitSQLStatements(m.SQL) {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", m.Version, i+1, err)
				}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, time.Now()); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return schemaError(m.Name, err)
		}
	}

	log.Info().Msg("Database schema ready")
	return nil
}

// SchemaVersion returns the highest applied migration.
func (db *DB) SchemaVersion() (int, error) {
	row, err := db.QueryRow("SELECT COALESCE(MAX(version), 0) AS version FROM schema_migrations")
	if err != nil {
		return 0, err
	}
	return int(row.Int64("version")), nil
}

func schemaError(op string, err error) error {
	return &Error{Kind: KindSchema, Op: op, Err: err}
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// Comment lines are dropped; a statement ends at a line ending in ";".
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	for line := range strings.SplitSeq(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL UNIQUE CHECK (username <> ''),
				email TEXT NOT NULL UNIQUE,
				full_name TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'user',
				password_hash TEXT,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
				last_login TEXT
			);

			CREATE TABLE IF NOT EXISTS products (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL CHECK (name <> ''),
				description TEXT,
				price REAL NOT NULL CHECK (price >= 0),
				category TEXT NOT NULL DEFAULT 'General',
				stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
				created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
				updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			);

			-- unit_price and total_price are a snapshot taken when the order is
			-- written and are never recalculated
			CREATE TABLE IF NOT EXISTS orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER REFERENCES users(id) ON DELETE RESTRICT,
				product_id INTEGER REFERENCES products(id) ON DELETE RESTRICT,
				quantity INTEGER NOT NULL CHECK (quantity > 0),
				unit_price REAL NOT NULL,
				total_price REAL NOT NULL,
				order_date TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
				status TEXT NOT NULL DEFAULT 'pending'
			);

			-- Append-only time series
			CREATE TABLE IF NOT EXISTS metrics (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				value REAL NOT NULL,
				recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			);

			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
			CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
			CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
			CREATE INDEX IF NOT EXISTS idx_orders_product_id ON orders(product_id);
			CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders(order_date);
			CREATE INDEX IF NOT EXISTS idx_metrics_name_recorded ON metrics(name, recorded_at);
		`,
	},
	{
		Version: 2,
		Name:    "settings_and_preferences",
		SQL: `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			);

			CREATE TABLE IF NOT EXISTS user_preferences (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				key TEXT NOT NULL,
				value TEXT,
				UNIQUE (user_id, key)
			);

			CREATE INDEX IF NOT EXISTS idx_user_preferences_user ON user_preferences(user_id);
		`,
	},
}
