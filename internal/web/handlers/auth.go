package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/auth"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/middleware"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// APILogin checks credentials and records the login time
func (h *Handlers) APILogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		h.jsonError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.jsonError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrInactiveUser):
		h.jsonError(w, "User account is disabled", http.StatusForbidden)
		return
	case err != nil:
		h.dbError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, user)
}

// APIMe returns the authenticated user
func (h *Handlers) APIMe(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, middleware.GetUser(r.Context()))
}

// APIChangePassword replaces the authenticated user's password
func (h *Handlers) APIChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	err := h.authService.ChangePassword(user.ID, req.Current, req.New)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.jsonError(w, "Current password is incorrect", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.dbError(w, err)
		return
	}

	log.Info().Str("username", user.Username).Msg("Password changed")
	h.jsonResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// APICreateUser registers a user with a hashed password
func (h *Handlers) APICreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
		Password string `json:"password"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.Register(database.NewUser{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
	}, req.Password)
	if err != nil {
		h.dbError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusCreated, user)
}
