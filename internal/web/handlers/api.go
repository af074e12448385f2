package handlers

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/sse"
)

// readableTables may be listed through the generic table API.
var readableTables = []string{"users", "products", "orders", "metrics", "user_preferences"}

// writableTables may be changed through the generic table API. Users and
// orders have typed endpoints that hash passwords and price orders.
var writableTables = []string{"products", "metrics", "user_preferences"}

// appendOnlyTables accept inserts only. Old metrics age out through the
// collector's retention job.
var appendOnlyTables = []string{"metrics"}

// reserved query parameters that are not filters
var reservedParams = []string{"limit", "order_by"}

// TableChange is the payload of record change events
type TableChange struct {
	Table    string          `json:"table"`
	ID       int64           `json:"id,omitempty"`
	Where    database.Fields `json:"where,omitempty"`
	Affected int64           `json:"affected"`
}

func (h *Handlers) tableParam(w http.ResponseWriter, r *http.Request, allowed []string) (string, bool) {
	table := chi.URLParam(r, "table")
	if !slices.Contains(allowed, table) {
		h.jsonError(w, "Unknown table", http.StatusNotFound)
		return "", false
	}
	return table, true
}

// whereFromQuery turns non-reserved query parameters into equality filters.
// The literal value "null" matches NULL.
func whereFromQuery(r *http.Request) database.Fields {
	where := database.Fields{}
	for key, values := range r.URL.Query() {
		if slices.Contains(reservedParams, key) || len(values) == 0 {
			continue
		}
		if values[0] == "null" {
			where[key] = nil
			continue
		}
		where[key] = values[0]
	}
	return where
}

// mutableTable resolves a writable table that also allows changing existing
// rows.
func (h *Handlers) mutableTable(w http.ResponseWriter, r *http.Request) (string, bool) {
	table, ok := h.tableParam(w, r, writableTables)
	if !ok {
		return "", false
	}
	if slices.Contains(appendOnlyTables, table) {
		h.jsonError(w, "Rows in "+table+" cannot be changed", http.StatusMethodNotAllowed)
		return "", false
	}
	return table, true
}

func stripHidden(rows []database.Row) []database.Row {
	for _, row := range rows {
		for col := range row {
			if database.HiddenColumn(col) {
				delete(row, col)
			}
		}
	}
	return rows
}

// rejectFields refuses hidden columns and values that are not JSON scalars.
func (h *Handlers) rejectFields(w http.ResponseWriter, fieldSets ...database.Fields) bool {
	for _, fields := range fieldSets {
		for col, value := range fields {
			if database.HiddenColumn(col) {
				h.jsonError(w, "Column "+col+" is not accessible", http.StatusBadRequest)
				return true
			}
			switch value.(type) {
			case map[string]any, []any:
				h.jsonError(w, "Column "+col+" must be a string, number, boolean or null", http.StatusBadRequest)
				return true
			}
		}
	}
	return false
}

// APIListRows returns rows of a table filtered by query parameters
func (h *Handlers) APIListRows(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableParam(w, r, readableTables)
	if !ok {
		return
	}
	limit, ok := h.intQuery(w, r, "limit", 0)
	if !ok {
		return
	}

	where := whereFromQuery(r)
	orderBy := r.URL.Query().Get("order_by")
	if h.rejectFields(w, where) {
		return
	}
	if database.OrderByHidden(orderBy) {
		h.jsonError(w, "Hidden columns cannot be ordered on", http.StatusBadRequest)
		return
	}

	rows, err := h.db.Select(table, database.SelectQuery{
		Where:   where,
		OrderBy: orderBy,
		Limit:   limit,
	})
	if err != nil {
		h.dbError(w, err)
		return
	}
	if rows == nil {
		rows = []database.Row{}
	}
	h.jsonResponse(w, http.StatusOK, stripHidden(rows))
}

// APIGetRow returns one row by id
func (h *Handlers) APIGetRow(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableParam(w, r, readableTables)
	if !ok {
		return
	}
	id, ok := h.idParam(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	rows, err := h.db.Select(table, database.SelectQuery{Where: database.Fields{"id": id}, Limit: 1})
	if err != nil {
		h.dbError(w, err)
		return
	}
	if len(rows) == 0 {
		h.jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, http.StatusOK, stripHidden(rows)[0])
}

// APICreateRow inserts one row from a JSON object body
func (h *Handlers) APICreateRow(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableParam(w, r, writableTables)
	if !ok {
		return
	}
	var fields database.Fields
	if !h.decodeJSON(w, r, &fields) || h.rejectFields(w, fields) {
		return
	}

	id, err := h.db.Insert(table, fields)
	if err != nil {
		h.dbError(w, err)
		return
	}

	log.Info().Str("table", table).Int64("id", id).Msg("Row created via API")
	h.publish(sse.EventRecordCreated, TableChange{Table: table, ID: id, Affected: 1})
	h.jsonResponse(w, http.StatusCreated, map[string]int64{"id": id})
}

// updateRequest is the body of a generic update
type updateRequest struct {
	Set   database.Fields `json:"set"`
	Where database.Fields `json:"where"`
}

// APIUpdateRows sets columns on every row matching the where object
func (h *Handlers) APIUpdateRows(w http.ResponseWriter, r *http.Request) {
	table, ok := h.mutableTable(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !h.decodeJSON(w, r, &req) || h.rejectFields(w, req.Set, req.Where) {
		return
	}

	n, err := h.db.Update(table, req.Set, req.Where)
	if err != nil {
		h.dbError(w, err)
		return
	}

	if n > 0 {
		h.publish(sse.EventRecordUpdated, TableChange{Table: table, Where: req.Where, Affected: n})
	}
	h.jsonResponse(w, http.StatusOK, map[string]int64{"affected": n})
}

// APIDeleteRows deletes every row matching the query parameters. An empty
// filter is refused by the store.
func (h *Handlers) APIDeleteRows(w http.ResponseWriter, r *http.Request) {
	table, ok := h.mutableTable(w, r)
	if !ok {
		return
	}
	where := whereFromQuery(r)
	if h.rejectFields(w, where) {
		return
	}

	n, err := h.db.Delete(table, where)
	if err != nil {
		h.dbError(w, err)
		return
	}

	if n > 0 {
		log.Info().Str("table", table).Int64("affected", n).Msg("Rows deleted via API")
		h.publish(sse.EventRecordDeleted, TableChange{Table: table, Where: where, Affected: n})
	}
	h.jsonResponse(w, http.StatusOK, map[string]int64{"affected": n})
}

// APITableInfo describes the columns of a readable table
func (h *Handlers) APITableInfo(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableParam(w, r, readableTables)
	if !ok {
		return
	}
	cols, err := h.db.TableInfo(table)
	if err != nil {
		h.dbError(w, err)
		return
	}
	visible := slices.DeleteFunc(cols, func(c database.ColumnInfo) bool {
		return database.HiddenColumn(c.Name)
	})
	h.jsonResponse(w, http.StatusOK, visible)
}
