package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/middleware"
	"github.com/saltyorg/dashstore/internal/web/sse"
)

// orderRequest is the body of an order creation
type orderRequest struct {
	UserID    *int64               `json:"user_id"`
	ProductID int64                `json:"product_id"`
	Quantity  int64                `json:"quantity"`
	Status    database.OrderStatus `json:"status"`
}

// APIListOrders lists orders, optionally filtered by ?status=
func (h *Handlers) APIListOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	status := database.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.jsonError(w, "Unknown order status", http.StatusBadRequest)
		return
	}

	orders, err := h.db.ListOrders(status, limit)
	if err != nil {
		h.dbError(w, err)
		return
	}
	if orders == nil {
		orders = []*database.Order{}
	}
	h.jsonResponse(w, http.StatusOK, orders)
}

// APIRecordOrder prices and stores a new order. Orders without a user_id
// belong to the caller.
func (h *Handlers) APIRecordOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == nil {
		if user := middleware.GetUser(r.Context()); user != nil {
			req.UserID = &user.ID
		}
	}

	order, err := h.db.RecordOrder(database.NewOrder{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Status:    req.Status,
	})
	if err != nil {
		h.dbError(w, err)
		return
	}

	log.Info().Int64("order_id", order.ID).Float64("total", order.TotalPrice).Msg("Order recorded via API")
	h.publish(sse.EventOrderRecorded, order)
	h.jsonResponse(w, http.StatusCreated, order)
}

// APIUpdateOrderStatus moves an order to a new status
func (h *Handlers) APIUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req struct {
		Status database.OrderStatus `json:"status"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	n, err := h.db.UpdateOrderStatus(id, req.Status)
	if err != nil {
		h.dbError(w, err)
		return
	}
	if n == 0 {
		h.jsonError(w, "Order not found", http.StatusNotFound)
		return
	}

	h.publish(sse.EventOrderStatusChanged, map[string]any{"id": id, "status": req.Status})
	h.jsonResponse(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}
