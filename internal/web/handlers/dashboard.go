package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saltyorg/dashstore/internal/database"
)

// APISummary returns count, sum, average and distinct categories of an entity
func (h *Handlers) APISummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.db.Summary(chi.URLParam(r, "entity"))
	if err != nil {
		h.dbError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, s)
}

// APISummaries returns the summary of every entity the report layer knows
func (h *Handlers) APISummaries(w http.ResponseWriter, r *http.Request) {
	out := make([]database.Summary, 0, len(database.Entities()))
	for _, entity := range database.Entities() {
		s, err := h.db.Summary(entity)
		if err != nil {
			h.dbError(w, err)
			return
		}
		out = append(out, s)
	}
	h.jsonResponse(w, http.StatusOK, out)
}

// APIRecentOrders returns recent orders joined with user and product names
func (h *Handlers) APIRecentOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", h.defaultRecent)
	if !ok {
		return
	}
	newestFirst := r.URL.Query().Get("order") != "asc"

	recent, err := h.db.JoinedRecent(limit, newestFirst)
	if err != nil {
		h.dbError(w, err)
		return
	}
	if recent == nil {
		recent = []database.RecentOrder{}
	}
	h.jsonResponse(w, http.StatusOK, recent)
}

// APIBreakdown groups an entity by a column
func (h *Handlers) APIBreakdown(w http.ResponseWriter, r *http.Request) {
	groups, err := h.db.GroupedBreakdown(chi.URLParam(r, "entity"), r.URL.Query().Get("by"))
	if err != nil {
		h.dbError(w, err)
		return
	}
	if groups == nil {
		groups = []database.Group{}
	}
	h.jsonResponse(w, http.StatusOK, groups)
}

// APITimeWindow returns rows of an entity newer than ?since=
func (h *Handlers) APITimeWindow(w http.ResponseWriter, r *http.Request) {
	since, ok := h.timeQuery(w, r, "since")
	if !ok {
		return
	}

	rows, err := h.db.TimeWindowed(chi.URLParam(r, "entity"), r.URL.Query().Get("column"), since)
	if err != nil {
		h.dbError(w, err)
		return
	}
	if rows == nil {
		rows = []database.Row{}
	}
	h.jsonResponse(w, http.StatusOK, stripHidden(rows))
}

// APITopProducts returns best sellers by revenue
func (h *Handlers) APITopProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", 5)
	if !ok {
		return
	}

	top, err := h.db.TopProducts(limit)
	if err != nil {
		h.dbError(w, err)
		return
	}
	if top == nil {
		top = []database.ProductSales{}
	}
	h.jsonResponse(w, http.StatusOK, top)
}

// APITotals returns the headline dashboard numbers
func (h *Handlers) APITotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.db.DashboardTotals()
	if err != nil {
		h.dbError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, totals)
}

// APIMetrics returns samples of one metric, or the latest value of every
// metric when ?name= is absent
func (h *Handlers) APIMetrics(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	var (
		metrics []*database.Metric
		err     error
	)
	if name == "" {
		metrics, err = h.db.LatestMetrics()
	} else {
		since, ok := h.timeQuery(w, r, "since")
		if !ok {
			return
		}
		metrics, err = h.db.ListMetrics(name, since)
	}
	if err != nil {
		h.dbError(w, err)
		return
	}
	if metrics == nil {
		metrics = []*database.Metric{}
	}
	h.jsonResponse(w, http.StatusOK, metrics)
}
