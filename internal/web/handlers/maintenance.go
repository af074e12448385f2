package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/web/sse"
)

// ValidateBackupPath checks a backup destination given over the API.
// It must be an absolute path to a file without null bytes or traversal.
func ValidateBackupPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains invalid characters")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute")
	}
	if filepath.Clean(path) != path {
		return fmt.Errorf("path must be clean (no . or .. elements)")
	}
	return nil
}

// APIBackup copies the database to an absolute path on the server
func (h *Handlers) APIBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateBackupPath(req.Path); err != nil {
		h.jsonError(w, "Invalid backup path: "+err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	if err := h.db.Backup(req.Path); err != nil {
		h.dbError(w, err)
		return
	}

	log.Info().Str("path", req.Path).Dur("duration", time.Since(start)).Msg("Backup written via API")
	h.publish(sse.EventBackupCompleted, map[string]any{"path": req.Path})
	h.jsonResponse(w, http.StatusOK, map[string]any{"path": req.Path})
}

// APIOptimize refreshes planner statistics
func (h *Handlers) APIOptimize(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Optimize(); err != nil {
		h.dbError(w, err)
		return
	}
	h.publish(sse.EventMaintenanceRun, map[string]any{"task": "optimize"})
	h.jsonResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// APITables lists the tables in the database
func (h *Handlers) APITables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.db.Tables()
	if err != nil {
		h.dbError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, tables)
}
