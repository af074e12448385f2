package config

import (
	"strconv"
	"time"
)

// SettingsGetter is an interface for retrieving settings from storage
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// Loader provides typed access to settings with default values
type Loader struct {
	db SettingsGetter
}

// NewLoader creates a new settings loader
func NewLoader(db SettingsGetter) *Loader {
	return &Loader{db: db}
}

// raw returns the stored value, or "" when unset or unreadable
func (l *Loader) raw(key string) string {
	if l == nil || l.db == nil {
		return ""
	}
	val, _ := l.db.GetSetting(key)
	return val
}

// Int retrieves an integer setting, returning defaultVal if not found or invalid
func (l *Loader) Int(key string, defaultVal int) int {
	if val := l.raw(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// Bool retrieves a boolean setting, returning defaultVal if not found
// Recognizes "true" as true, anything else (including "false") as false
func (l *Loader) Bool(key string, defaultVal bool) bool {
	if val := l.raw(key); val != "" {
		return val == "true"
	}
	return defaultVal
}

// String retrieves a string setting, returning defaultVal if not found or empty
func (l *Loader) String(key, defaultVal string) string {
	if val := l.raw(key); val != "" {
		return val
	}
	return defaultVal
}

// Duration retrieves a duration setting, returning defaultVal if not found or invalid
// Expects the value to be in Go duration format (e.g., "1h30m", "5s")
func (l *Loader) Duration(key string, defaultVal time.Duration) time.Duration {
	if val := l.raw(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// DurationSeconds retrieves a duration setting stored as seconds
func (l *Loader) DurationSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(l.Int(key, defaultSeconds)) * time.Second
}

// Float64 retrieves a float64 setting, returning defaultVal if not found or invalid
func (l *Loader) Float64(key string, defaultVal float64) float64 {
	if val := l.raw(key); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			return v
		}
	}
	return defaultVal
}
