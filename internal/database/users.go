package database

import (
	"fmt"
	"strings"
	"time"
)

// User roles
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// User represents a user account stored in the database.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Role         string     `json:"role"`
	Active       bool       `json:"is_active"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// NewUser holds the fields accepted when creating a user.
type NewUser struct {
	Username     string
	Email        string
	FullName     string
	Role         string
	PasswordHash string
}

// UserUpdate holds changeable fields; nil fields are left as they are.
type UserUpdate struct {
	Email    *string
	FullName *string
	Role     *string
	Active   *bool
}

// CreateUser validates and inserts a new user record.
func (db *DB) CreateUser(u NewUser) (*User, error) {
	const op = "create user"
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)
	if err := requireText(op, "username", u.Username); err != nil {
		return nil, err
	}
	if !ValidateEmail(u.Email) {
		return nil, validationError(op, "invalid email address %q", u.Email)
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !ValidRole(u.Role) {
		return nil, validationError(op, "unknown role %q", u.Role)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	id, err := db.Insert("users", Fields{
		"username":      u.Username,
		"email":         u.Email,
		"full_name":     u.FullName,
		"role":          u.Role,
		"password_hash": nullableString(u.PasswordHash),
		"is_active":     true,
		"created_at":    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &User{
		ID:           id,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		Role:         u.Role,
		Active:       true,
		PasswordHash: u.PasswordHash,
		CreatedAt:    now,
	}, nil
}

// GetUser retrieves a user by ID, nil when absent.
func (db *DB) GetUser(id int64) (*User, error) {
	return db.getUserWhere(Fields{"id": id})
}

// GetUserByUsername retrieves a user by username, nil when absent.
func (db *DB) GetUserByUsername(username string) (*User, error) {
	return db.getUserWhere(Fields{"username": username})
}

func (db *DB) getUserWhere(where Fields) (*User, error) {
	rows, err := db.Select("users", SelectQuery{Where: where, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return userFromRow(rows[0]), nil
}

// ListUsers returns all users, newest first.
func (db *DB) ListUsers() ([]*User, error) {
	rows, err := db.Select("users", SelectQuery{OrderBy: "created_at DESC, id DESC"})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]*User, 0, len(rows))
	for _, row := range rows {
		users = append(users, userFromRow(row))
	}
	return users, nil
}

// UpdateUser applies the non-nil fields of upd and returns rows changed.
func (db *DB) UpdateUser(id int64, upd UserUpdate) (int64, error) {
	fields := Fields{}
	if upd.Email != nil {
		if !ValidateEmail(*upd.Email) {
			return 0, validationError("update user", "invalid email address %q", *upd.Email)
		}
		fields["email"] = *upd.Email
	}
	if upd.FullName != nil {
		fields["full_name"] = *upd.FullName
	}
	if upd.Role != nil {
		if !ValidRole(*upd.Role) {
			return 0, validationError("update user", "unknown role %q", *upd.Role)
		}
		fields["role"] = *upd.Role
	}
	if upd.Active != nil {
		fields["is_active"] = *upd.Active
	}

	n, err := db.Update("users", fields, Fields{"id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to update user %d: %w", id, err)
	}
	return n, nil
}

// UpdateUserPassword updates the user's password hash.
func (db *DB) UpdateUserPassword(id int64, passwordHash string) error {
	if _, err := db.Update("users", Fields{"password_hash": passwordHash}, Fields{"id": id}); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// TouchLastLogin records a successful authentication.
func (db *DB) TouchLastLogin(id int64, at time.Time) error {
	if _, err := db.Update("users", Fields{"last_login": at}, Fields{"id": id}); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// DeleteUser removes a user. Users referenced by orders cannot be deleted.
func (db *DB) DeleteUser(id int64) (int64, error) {
	n, err := db.Delete("users", Fields{"id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	return n, nil
}

func userFromRow(row Row) *User {
	return &User{
		ID:           row.Int64("id"),
		Username:     row.String("username"),
		Email:        row.String("email"),
		FullName:     row.String("full_name"),
		Role:         row.String("role"),
		Active:       row.Bool("is_active"),
		PasswordHash: row.String("password_hash"),
		CreatedAt:    row.Time("created_at"),
		LastLogin:    row.TimePtr("last_login"),
	}
}
