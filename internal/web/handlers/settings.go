package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/database"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// APIGetSettings returns every stored setting
func (h *Handlers) APIGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.db.GetAllSettings()
	if err != nil {
		h.dbError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, settings)
}

// APIUpdateSettings stores known settings from a JSON object of strings
func (h *Handlers) APIUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if len(req) == 0 {
		h.jsonError(w, "No settings given", http.StatusBadRequest)
		return
	}

	keys := make([]string, 0, len(req))
	for key, value := range req {
		if _, known := database.DefaultSettings[key]; !known {
			h.jsonError(w, "Unknown setting "+key, http.StatusBadRequest)
			return
		}
		if key == "log.level" && !containsFold(validLogLevels, value) {
			h.jsonError(w, "Invalid log level", http.StatusBadRequest)
			return
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := h.db.SetSetting(key, req[key]); err != nil {
			h.dbError(w, err)
			return
		}
	}

	log.Info().Strs("keys", keys).Msg("Settings updated")
	if h.onSettingsChanged != nil {
		h.onSettingsChanged()
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"updated": keys})
}

// SetSettingsHook registers fn to run after settings change
func (h *Handlers) SetSettingsHook(fn func()) {
	h.onSettingsChanged = fn
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
