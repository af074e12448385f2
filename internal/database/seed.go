package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	DefaultAdminUsername = "admin"
	DefaultAdminEmail    = "admin@company.com"
)

// EnsureSeedData inserts the default administrator and default settings when
// they are missing. Existing rows are never touched, so it is safe on every
// startup.
func (db *DB) EnsureSeedData(adminPasswordHash string) error {
	admin, err := db.GetUserByUsername(DefaultAdminUsername)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}
	if admin == nil {
		if _, err := db.CreateUser(NewUser{
			Username:     DefaultAdminUsername,
			Email:        DefaultAdminEmail,
			FullName:     "Administrator",
			Role:         RoleAdmin,
			PasswordHash: adminPasswordHash,
		}); err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		log.Info().Str("username", DefaultAdminUsername).Msg("Created default admin user")
	}

	if err := db.InitializeDefaults(); err != nil {
		return fmt.Errorf("failed to initialize settings: %w", err)
	}
	return nil
}

// IsFirstRun checks if this is the first run (no users exist)
func (db *DB) IsFirstRun() (bool, error) {
	row, err := db.QueryRow("SELECT COUNT(*) AS n FROM users")
	if err != nil {
		return false, fmt.Errorf("failed to check users: %w", err)
	}
	return row.Int64("n") == 0, nil
}
