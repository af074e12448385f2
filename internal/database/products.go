package database

import (
	"fmt"
	"strings"
	"time"
)

// DefaultCategory is used when a product is created without one.
const DefaultCategory = "General"

// Product is a catalog item.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Price         float64   `json:"price"`
	Category      string    `json:"category"`
	StockQuantity int64     `json:"stock_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProductUpdate holds changeable fields; nil fields are left as they are.
type ProductUpdate struct {
	Name          *string
	Description   *string
	Price         *float64
	Category      *string
	StockQuantity *int64
}

func validateProduct(op string, name string, price float64, stock int64) error {
	if err := requireText(op, "name", name); err != nil {
		return err
	}
	if price < 0 {
		return validationError(op, "price must not be negative, got %v", price)
	}
	if stock < 0 {
		return validationError(op, "stock quantity must not be negative, got %d", stock)
	}
	return nil
}

// CreateProduct validates and inserts p. ID and timestamps are filled in on
// the returned copy.
func (db *DB) CreateProduct(p Product) (*Product, error) {
	if err := validateProduct("create product", p.Name, p.Price, p.StockQuantity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Category) == "" {
		p.Category = DefaultCategory
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	id, err := db.Insert("products", Fields{
		"name":           p.Name,
		"description":    nullableString(p.Description),
		"price":          p.Price,
		"category":       p.Category,
		"stock_quantity": p.StockQuantity,
		"created_at":     now,
		"updated_at":     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return &p, nil
}

// GetProduct retrieves a product by ID, nil when absent.
func (db *DB) GetProduct(id int64) (*Product, error) {
	rows, err := db.Select("products", SelectQuery{Where: Fields{"id": id}, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return productFromRow(rows[0]), nil
}

// ListProducts returns products ordered by name, optionally within one category.
func (db *DB) ListProducts(category string) ([]*Product, error) {
	q := SelectQuery{OrderBy: "name, id"}
	if category != "" {
		q.Where = Fields{"category": category}
	}
	rows, err := db.Select("products", q)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products := make([]*Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, productFromRow(row))
	}
	return products, nil
}

// UpdateProduct applies the non-nil fields of upd, bumps updated_at and
// returns rows changed. Existing orders keep the price they were written with.
func (db *DB) UpdateProduct(id int64, upd ProductUpdate) (int64, error) {
	const op = "update product"
	fields := Fields{}
	if upd.Name != nil {
		if err := requireText(op, "name", *upd.Name); err != nil {
			return 0, err
		}
		fields["name"] = *upd.Name
	}
	if upd.Description != nil {
		fields["description"] = nullableString(*upd.Description)
	}
	if upd.Price != nil {
		if *upd.Price < 0 {
			return 0, validationError(op, "price must not be negative, got %v", *upd.Price)
		}
		fields["price"] = *upd.Price
	}
	if upd.Category != nil {
		fields["category"] = *upd.Category
	}
	if upd.StockQuantity != nil {
		if *upd.StockQuantity < 0 {
			return 0, validationError(op, "stock quantity must not be negative, got %d", *upd.StockQuantity)
		}
		fields["stock_quantity"] = *upd.StockQuantity
	}
	if len(fields) == 0 {
		return 0, validationError(op, "no fields to update")
	}
	fields["updated_at"] = time.Now()

	n, err := db.Update("products", fields, Fields{"id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return n, nil
}

// DeleteProduct removes a product. Products referenced by orders cannot be
// deleted and fail with an integrity error.
func (db *DB) DeleteProduct(id int64) (int64, error) {
	n, err := db.Delete("products", Fields{"id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	return n, nil
}

func productFromRow(row Row) *Product {
	return &Product{
		ID:            row.Int64("id"),
		Name:          row.String("name"),
		Description:   row.String("description"),
		Price:         row.Float64("price"),
		Category:      row.String("category"),
		StockQuantity: row.Int64("stock_quantity"),
		CreatedAt:     row.Time("created_at"),
		UpdatedAt:     row.Time("updated_at"),
	}
}
