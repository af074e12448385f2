package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/saltyorg/dashstore/internal/logging"
)

// GetSetting retrieves a setting value by key, "" when unset
func (db *DB) GetSetting(key string) (string, error) {
	row, err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key)
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	if row == nil {
		return "", nil
	}
	return row.String("value"), nil
}

// GetSettingJSON retrieves a setting and unmarshals it from JSON
func (db *DB) GetSettingJSON(key string, v any) error {
	value, err := db.GetSetting(key)
	if err != nil {
		return err
	}
	if value == "" {
		return nil
	}
	return json.Unmarshal([]byte(value), v)
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SetSettingJSON stores a setting as JSON
func (db *DB) SetSettingJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &Error{Kind: KindValidation, Op: "set setting " + key, Err: err}
	}
	return db.SetSetting(key, string(data))
}

// GetAllSettings retrieves all settings
func (db *DB) GetAllSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.String("key")] = row.String("value")
	}
	return settings, nil
}

// DeleteSetting removes a setting
func (db *DB) DeleteSetting(key string) error {
	_, err := db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// DefaultSettings are written by EnsureSeedData when missing.
// Strings are stored as-is, everything else JSON encoded.
var DefaultSettings = map[string]any{
	"log.level":                 "info",
	"log.max_size_mb":           logging.DefaultMaxSizeMB,
	"log.max_backups":           logging.DefaultMaxBackups,
	"log.max_age_days":          logging.DefaultMaxAgeDays,
	"log.compress":              logging.DefaultCompress,
	"collector.enabled":         true,
	"collector.schedule":        "@every 30s",
	"collector.retention_days":  30,
	"maintenance.schedule":      "@daily",
	"products.default_category": DefaultCategory,
	"dashboard.recent_limit":    10,
	"dashboard.refresh_seconds": 30,
}

// InitializeDefaults sets default values for settings that don't exist
func (db *DB) InitializeDefaults() error {
	for key, value := range DefaultSettings {
		existing, err := db.GetSetting(key)
		if err != nil {
			return err
		}
		if existing != "" {
			continue
		}
		if str, ok := value.(string); ok {
			err = db.SetSetting(key, str)
		} else {
			err = db.SetSettingJSON(key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
