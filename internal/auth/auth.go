package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/saltyorg/dashstore/internal/database"
)

// BcryptCost is the bcrypt cost factor. Tests lower it.
var BcryptCost = 12

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInactiveUser is returned when the password matches a disabled account.
	ErrInactiveUser = errors.New("user account is disabled")
)

// Service handles authentication against the users table.
type Service struct {
	db  *database.DB
	now func() time.Time
}

// NewService creates a new auth service
func NewService(db *database.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a hash
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Register creates an account with a hashed password.
func (s *Service) Register(u database.NewUser, password string) (*database.User, error) {
	if len(password) < MinPasswordLength {
		return nil, &database.Error{
			Kind: database.KindValidation,
			Op:   "register",
			Err:  fmt.Errorf("password must be at least %d characters", MinPasswordLength),
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	return s.db.CreateUser(u)
}

// Authenticate verifies credentials without recording a login.
func (s *Service) Authenticate(username, password string) (*database.User, error) {
	user, err := s.db.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(password, user.PasswordHash) {
		log.Debug().Str("username", username).Msg("Login rejected")
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// Login verifies credentials, records the login time and returns the user.
func (s *Service) Login(username, password string) (*database.User, error) {
	user, err := s.Authenticate(username, password)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	if err := s.db.TouchLastLogin(user.ID, at); err != nil {
		return nil, err
	}
	user.LastLogin = &at

	log.Info().Str("username", user.Username).Msg("User logged in")
	return user, nil
}

// ChangePassword replaces a user's password after checking the current one.
func (s *Service) ChangePassword(userID int64, current, next string) error {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return err
	}
	if user == nil || !CheckPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if len(next) < MinPasswordLength {
		return &database.Error{
			Kind: database.KindValidation,
			Op:   "change password",
			Err:  fmt.Errorf("password must be at least %d characters", MinPasswordLength),
		}
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.db.UpdateUserPassword(userID, hash)
}
