package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a recorded sale. UnitPrice and TotalPrice are fixed when the order
// is written.
type Order struct {
	ID         int64       `json:"id"`
	UserID     *int64      `json:"user_id,omitempty"`
	ProductID  *int64      `json:"product_id,omitempty"`
	Quantity   int64       `json:"quantity"`
	UnitPrice  float64     `json:"unit_price"`
	TotalPrice float64     `json:"total_price"`
	OrderDate  time.Time   `json:"order_date"`
	Status     OrderStatus `json:"status"`
}

// NewOrder is the input to RecordOrder. A zero OrderDate means now.
type NewOrder struct {
	UserID    *int64
	ProductID int64
	Quantity  int64
	Status    OrderStatus
	OrderDate time.Time
}

// OrderTotal returns quantity x unit price rounded to cents.
func OrderTotal(quantity int64, unitPrice float64) float64 {
	return decimal.NewFromFloat(unitPrice).
		Mul(decimal.NewFromInt(quantity)).
		Round(2).
		InexactFloat64()
}

// RecordOrder reads the product's current price and writes the order with
// that price and the computed total in one transaction.
func (db *DB) RecordOrder(o NewOrder) (*Order, error) {
	const op = "record order"
	if o.Quantity <= 0 {
		return nil, validationError(op, "quantity must be positive, got %d", o.Quantity)
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	if !o.Status.Valid() {
		return nil, validationError(op, "unknown order status %q", o.Status)
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now()
	}
	o.OrderDate = o.OrderDate.UTC().Truncate(time.Millisecond)

	order := &Order{
		UserID:    o.UserID,
		ProductID: &o.ProductID,
		Quantity:  o.Quantity,
		OrderDate: o.OrderDate,
		Status:    o.Status,
	}

	err := db.Transaction(func(tx *Tx) error {
		row, err := tx.QueryRow("SELECT price FROM products WHERE id = ?", o.ProductID)
		if err != nil {
			return err
		}
		if row == nil {
			return integrityError(op, "product %d does not exist", o.ProductID)
		}

		order.UnitPrice = row.Float64("price")
		order.TotalPrice = OrderTotal(o.Quantity, order.UnitPrice)

		id, err := tx.Insert("orders", Fields{
			"user_id":     o.UserID,
			"product_id":  o.ProductID,
			"quantity":    o.Quantity,
			"unit_price":  order.UnitPrice,
			"total_price": order.TotalPrice,
			"order_date":  o.OrderDate,
			"status":      string(o.Status),
		})
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record order: %w", err)
	}

	log.Debug().
		Int64("order_id", order.ID).
		Int64("product_id", o.ProductID).
		Float64("total_price", order.TotalPrice).
		Msg("Order recorded")

	return order, nil
}

// GetOrder retrieves an order by ID, nil when absent.
func (db *DB) GetOrder(id int64) (*Order, error) {
	rows, err := db.Select("orders", SelectQuery{Where: Fields{"id": id}, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return orderFromRow(rows[0]), nil
}

// ListOrders returns orders newest first, optionally filtered by status.
// A limit of 0 returns every order.
func (db *DB) ListOrders(status OrderStatus, limit int) ([]*Order, error) {
	q := SelectQuery{OrderBy: "order_date DESC, id DESC", Limit: limit}
	if status != "" {
		q.Where = Fields{"status": string(status)}
	}
	rows, err := db.Select("orders", q)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders := make([]*Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, orderFromRow(row))
	}
	return orders, nil
}

// UpdateOrderStatus changes an order's status. Prices are never touched.
func (db *DB) UpdateOrderStatus(id int64, status OrderStatus) (int64, error) {
	if !status.Valid() {
		return 0, validationError("update order status", "unknown order status %q", status)
	}
	n, err := db.Update("orders", Fields{"status": string(status)}, Fields{"id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to update order %d: %w", id, err)
	}
	return n, nil
}

func orderFromRow(row Row) *Order {
	return &Order{
		ID:         row.Int64("id"),
		UserID:     row.Int64Ptr("user_id"),
		ProductID:  row.Int64Ptr("product_id"),
		Quantity:   row.Int64("quantity"),
		UnitPrice:  row.Float64("unit_price"),
		TotalPrice: row.Float64("total_price"),
		OrderDate:  row.Time("order_date"),
		Status:     OrderStatus(row.String("status")),
	}
}
