package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/auth"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/sse"
)

// VersionInfo holds application version information
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db            *database.DB
	authService   *auth.Service
	broker        *sse.Broker
	pingInterval  time.Duration
	versionInfo   VersionInfo
	maxBodyBytes  int64
	defaultRecent int

	onSettingsChanged func()
}

// New creates a new Handlers instance. broker may be nil, which disables
// live events.
func New(db *database.DB, authService *auth.Service, broker *sse.Broker) *Handlers {
	return &Handlers{
		db:            db,
		authService:   authService,
		broker:        broker,
		pingInterval:  30 * time.Second,
		maxBodyBytes:  1 << 20,
		defaultRecent: 10,
	}
}

// SetVersionInfo sets the application version information
func (h *Handlers) SetVersionInfo(version, commit, date string) {
	h.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// SetPingInterval sets how often websocket clients are pinged
func (h *Handlers) SetPingInterval(d time.Duration) {
	if d > 0 {
		h.pingInterval = d
	}
}

// SetRecentLimit sets the default row count of the recent orders endpoint
func (h *Handlers) SetRecentLimit(n int) {
	if n > 0 {
		h.defaultRecent = n
	}
}

// Health reports whether the database answers queries
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.QueryRow("SELECT 1 AS ok"); err != nil {
		h.dbError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Version returns build information
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.versionInfo)
}

func (h *Handlers) publish(eventType sse.EventType, data any) {
	if h.broker != nil {
		h.broker.Broadcast(sse.Event{Type: eventType, Data: data})
	}
}

// decodeJSON reads a size-limited JSON body into v
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// jsonResponse writes v as JSON with the given status
func (h *Handlers) jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}

// dbError maps a database error kind to an HTTP status. Validation and
// integrity messages are safe to show; others are logged and hidden.
func (h *Handlers) dbError(w http.ResponseWriter, err error) {
	var dbErr *database.Error
	if !errors.As(err, &dbErr) {
		log.Error().Err(err).Msg("Request failed")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	switch dbErr.Kind {
	case database.KindValidation:
		h.jsonError(w, dbErr.Error(), http.StatusBadRequest)
	case database.KindIntegrity:
		h.jsonError(w, dbErr.Error(), http.StatusConflict)
	case database.KindConnection, database.KindSchema:
		log.Error().Err(err).Msg("Database unavailable")
		h.jsonError(w, "Database unavailable", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("Query failed")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// idParam parses a positive integer id from a chi URL parameter value
func (h *Handlers) idParam(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// intQuery parses an optional integer query parameter
func (h *Handlers) intQuery(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.jsonError(w, "Invalid "+key, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// timeQuery parses an optional timestamp query parameter. Plain dates and
// RFC 3339 are accepted.
func (h *Handlers) timeQuery(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	t, err := database.ParseTime(raw)
	if err != nil {
		h.jsonError(w, "Invalid "+key, http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}
