package handlers

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/report"
)

// APIReport builds a report and writes it in the ?format= encoding
// (json by default, csv or table)
func (h *Handlers) APIReport(w http.ResponseWriter, r *http.Request) {
	kind := report.Kind(chi.URLParam(r, "kind"))
	if !slices.Contains(report.Kinds(), kind) {
		h.jsonError(w, "Unknown report kind", http.StatusNotFound)
		return
	}

	format := report.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = report.FormatJSON
	}
	if !slices.Contains(report.Formats(), format) {
		h.jsonError(w, "Unknown report format", http.StatusBadRequest)
		return
	}

	since, ok := h.timeQuery(w, r, "since")
	if !ok {
		return
	}
	limit, ok := h.intQuery(w, r, "limit", 0)
	if !ok {
		return
	}

	rep, err := report.Build(h.db, kind, report.Options{Since: since, Limit: limit})
	if err != nil {
		h.dbError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format == report.FormatCSV {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%s.csv", kind, rep.GeneratedAt.Format("20060102-150405"))))
	}
	if err := report.Write(w, rep, format); err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to write report")
	}
}
