package database

import "fmt"

// SetPreference stores a per-user key/value pair, replacing any previous value.
func (db *DB) SetPreference(userID int64, key, value string) error {
	if err := requireText("set preference", "key", key); err != nil {
		return err
	}
	_, err := db.Exec(`
		INSERT INTO user_preferences (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference %s for user %d: %w", key, userID, err)
	}
	return nil
}

// GetPreferences returns every preference stored for a user.
func (db *DB) GetPreferences(userID int64) (map[string]string, error) {
	rows, err := db.Select("user_preferences", SelectQuery{Where: Fields{"user_id": userID}, OrderBy: "key"})
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences for user %d: %w", userID, err)
	}
	prefs := make(map[string]string, len(rows))
	for _, row := range rows {
		prefs[row.String("key")] = row.String("value")
	}
	return prefs, nil
}

// DeletePreference removes one preference and reports whether it existed.
func (db *DB) DeletePreference(userID int64, key string) (bool, error) {
	n, err := db.Delete("user_preferences", Fields{"user_id": userID, "key": key})
	if err != nil {
		return false, fmt.Errorf("failed to delete preference %s for user %d: %w", key, userID, err)
	}
	return n > 0, nil
}
