package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// ColumnInfo describes one column as reported by PRAGMA table_info.
type ColumnInfo struct {
	Position   int64  `json:"position"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key"`
}

// Optimize runs SQLite's PRAGMA optimize to refresh planner stats.
func (db *DB) Optimize() error {
	if _, err := db.Exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}
	return nil
}

// Vacuum rebuilds the database file to reclaim unused space.
func (db *DB) Vacuum() error {
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// Backup writes a consistent copy of the database to dest, which must not
// exist yet.
func (db *DB) Backup(dest string) error {
	if dest == "" {
		return validationError("backup", "empty destination path")
	}
	if _, err := os.Stat(dest); err == nil {
		return validationError("backup", "destination %s already exists", dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return &Error{Kind: KindConnection, Op: "backup", Err: err}
	}

	if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("failed to back up database to %s: %w", dest, err)
	}
	log.Info().Str("source", db.path).Str("destination", dest).Msg("Database backup written")
	return nil
}

// TableInfo lists the columns of table in declaration order. An unknown table
// yields no columns.
func (db *DB) TableInfo(table string) ([]ColumnInfo, error) {
	if err := checkIdentifier("table info", "table", table); err != nil {
		return nil, err
	}
	rows, err := db.Query("SELECT cid, name, type, \"notnull\", dflt_value, pk FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("failed to get table info for %s: %w", table, err)
	}

	cols := make([]ColumnInfo, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, ColumnInfo{
			Position:   row.Int64("cid"),
			Name:       row.String("name"),
			Type:       row.String("type"),
			NotNull:    row.Bool("notnull"),
			Default:    row.String("dflt_value"),
			PrimaryKey: row.Int64("pk") > 0,
		})
	}
	return cols, nil
}

// Tables lists the user tables in the database.
func (db *DB) Tables() ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.String("name"))
	}
	return names, nil
}

// hasColumn reports whether table has a column called col.
func (db *DB) hasColumn(table, col string) (bool, error) {
	cols, err := db.TableInfo(table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c.Name == col {
			return true, nil
		}
	}
	return false, nil
}
