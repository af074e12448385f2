package database

import (
	"errors"
	"testing"
	"time"
)

func TestCreateUser_Validation(t *testing.T) {
	db := newTestDB(t)

	tests := []struct {
		name string
		user NewUser
	}{
		{"empty username", NewUser{Username: "  ", Email: "a@x.com"}},
		{"bad email", NewUser{Username: "alice", Email: "not-an-email"}},
		{"missing email", NewUser{Username: "alice"}},
		{"unknown role", NewUser{Username: "alice", Email: "a@x.com", Role: "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.CreateUser(tt.user); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if got := countRows(t, db, "users"); got != 0 {
		t.Fatalf("expected no users, got %d", got)
	}
}

func TestUserLifecycle(t *testing.T) {
	db := newTestDB(t)

	created, err := db.CreateUser(NewUser{Username: "alice", Email: "alice@example.com", FullName: "Alice", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if created.Role != RoleUser || !created.Active {
		t.Fatalf("unexpected defaults %+v", created)
	}

	got, err := db.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername returned error: %v", err)
	}
	if got == nil || got.ID != created.ID || got.PasswordHash != "hash" {
		t.Fatalf("unexpected user %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected created_at %v, got %v", created.CreatedAt, got.CreatedAt)
	}
	if got.LastLogin != nil {
		t.Fatalf("expected no last login, got %v", got.LastLogin)
	}

	missing, err := db.GetUserByUsername("nobody")
	if err != nil {
		t.Fatalf("GetUserByUsername returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing user, got %+v", missing)
	}

	role := RoleManager
	active := false
	n, err := db.UpdateUser(created.ID, UserUpdate{Role: &role, Active: &active})
	if err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row updated, got %d", n)
	}

	login := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	if err := db.TouchLastLogin(created.ID, login); err != nil {
		t.Fatalf("TouchLastLogin returned error: %v", err)
	}

	got, err = db.GetUser(created.ID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if got.Role != RoleManager || got.Active {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(login) {
		t.Fatalf("expected last login %v, got %v", login, got.LastLogin)
	}

	bad := "nope"
	if _, err := db.UpdateUser(created.ID, UserUpdate{Email: &bad}); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := db.UpdateUser(created.ID, UserUpdate{}); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}
}

func TestDeleteUser_CascadesPreferences(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "alice")

	if err := db.SetPreference(user.ID, "theme", "dark"); err != nil {
		t.Fatalf("SetPreference returned error: %v", err)
	}
	if err := db.SetPreference(user.ID, "theme", "light"); err != nil {
		t.Fatalf("SetPreference returned error: %v", err)
	}
	if err := db.SetPreference(user.ID, "page_size", "50"); err != nil {
		t.Fatalf("SetPreference returned error: %v", err)
	}

	prefs, err := db.GetPreferences(user.ID)
	if err != nil {
		t.Fatalf("GetPreferences returned error: %v", err)
	}
	if len(prefs) != 2 || prefs["theme"] != "light" {
		t.Fatalf("unexpected preferences %v", prefs)
	}

	removed, err := db.DeletePreference(user.ID, "page_size")
	if err != nil {
		t.Fatalf("DeletePreference returned error: %v", err)
	}
	if !removed {
		t.Fatal("expected preference to be removed")
	}

	if _, err := db.DeleteUser(user.ID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if got := countRows(t, db, "user_preferences"); got != 0 {
		t.Fatalf("expected preferences to cascade, %d left", got)
	}
}

func TestDeleteUser_RestrictedByOrders(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "alice")
	product := createProduct(t, db, "Chair", 10, 1)

	if _, err := db.RecordOrder(NewOrder{UserID: &user.ID, ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("RecordOrder returned error: %v", err)
	}
	if _, err := db.DeleteUser(user.ID); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := map[string]bool{
		"a@x.com":             true,
		"first.last+tag@a.io": true,
		"admin@company.com":   true,
		"no-at-sign":          false,
		"a@b":                 false,
		"a@b.c":               false,
		"":                    false,
	}
	for email, want := range tests {
		if got := ValidateEmail(email); got != want {
			t.Errorf("ValidateEmail(%q) = %v, want %v", email, got, want)
		}
	}
}
