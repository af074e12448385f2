package database

import (
	"fmt"
	"sort"
	"time"
)

// DeletedName stands in for a user or product that an order still refers to
// but that no longer exists.
const DeletedName = "(deleted)"

// Summary is a headline aggregate over one table. All fields are zero for an
// empty table.
type Summary struct {
	Entity             string  `json:"entity"`
	Count              int64   `json:"count"`
	Sum                float64 `json:"sum"`
	Avg                float64 `json:"avg"`
	DistinctCategories int64   `json:"distinct_categories"`
}

// RecentOrder is an order with its references resolved for display.
type RecentOrder struct {
	OrderID     int64       `json:"order_id"`
	UserID      *int64      `json:"user_id,omitempty"`
	Username    string      `json:"username"`
	ProductID   *int64      `json:"product_id,omitempty"`
	ProductName string      `json:"product_name"`
	Category    string      `json:"category"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   float64     `json:"unit_price"`
	TotalPrice  float64     `json:"total_price"`
	Status      OrderStatus `json:"status"`
	OrderDate   time.Time   `json:"order_date"`
}

// Group is one bucket of a grouped breakdown.
type Group struct {
	Value     string  `json:"value"`
	Count     int64   `json:"count"`
	Aggregate float64 `json:"aggregate"`
}

// ProductSales is a product ranked by revenue.
type ProductSales struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	UnitsSold int64   `json:"units_sold"`
	Revenue   float64 `json:"revenue"`
}

// Totals are the headline numbers of the dashboard.
type Totals struct {
	Users       int64   `json:"users"`
	ActiveUsers int64   `json:"active_users"`
	Products    int64   `json:"products"`
	Orders      int64   `json:"orders"`
	Revenue     float64 `json:"revenue"`
	LowStock    int64   `json:"low_stock"`
}

// LowStockThreshold marks products that need restocking.
const LowStockThreshold = 10

type entityDef struct {
	// value is summed and averaged; empty means the entity has no amount
	value string
	// category is counted distinct and is the default group column
	category string
	// aggregate is the breakdown expression per group
	aggregate string
	// time is the default time column
	time string
}

var entityDefs = map[string]entityDef{
	"orders":   {value: "total_price", category: "status", aggregate: "SUM(total_price)", time: "order_date"},
	"products": {value: "price", category: "category", aggregate: "SUM(stock_quantity)", time: "created_at"},
	"users":    {category: "role", aggregate: "COUNT(*)", time: "created_at"},
	"metrics":  {value: "value", category: "name", aggregate: "AVG(value)", time: "recorded_at"},
}

// Entities lists the tables the report layer understands.
func Entities() []string {
	names := make([]string, 0, len(entityDefs))
	for name := range entityDefs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupEntity(op, entity string) (entityDef, error) {
	def, ok := entityDefs[entity]
	if !ok {
		return entityDef{}, validationError(op, "unknown entity %q", entity)
	}
	return def, nil
}

// Summary returns count, sum, average and distinct category count for entity.
func (db *DB) Summary(entity string) (Summary, error) {
	def, err := lookupEntity("summary", entity)
	if err != nil {
		return Summary{}, err
	}

	value := "0"
	if def.value != "" {
		value = def.value
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) AS row_count,
			COALESCE(SUM(%[1]s), 0) AS total,
			COALESCE(AVG(%[1]s), 0) AS average,
			COUNT(DISTINCT %[2]s) AS categories
		FROM %[3]s
	`, value, def.category, entity)

	row, err := db.QueryRow(query)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize %s: %w", entity, err)
	}

	return Summary{
		Entity:             entity,
		Count:              row.Int64("row_count"),
		Sum:                row.Float64("total"),
		Avg:                row.Float64("average"),
		DistinctCategories: row.Int64("categories"),
	}, nil
}

// JoinedRecent returns up to limit orders with user and product names
// resolved. A limit of 0 returns every order. References to rows that no
// longer exist resolve to DeletedName.
func (db *DB) JoinedRecent(limit int, newestFirst bool) ([]RecentOrder, error) {
	if limit < 0 {
		return nil, validationError("joined recent", "negative limit %d", limit)
	}
	direction := "DESC"
	if !newestFirst {
		direction = "ASC"
	}

	query := `
		SELECT o.id, o.user_id, o.product_id, o.quantity, o.unit_price,
			o.total_price, o.status, o.order_date,
			CASE WHEN o.user_id IS NULL THEN '' ELSE COALESCE(u.username, ?) END AS username,
			CASE WHEN o.product_id IS NULL THEN '' ELSE COALESCE(p.name, ?) END AS product_name,
			COALESCE(p.category, '') AS category
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		LEFT JOIN products p ON p.id = o.product_id
		ORDER BY o.order_date ` + direction + `, o.id ` + direction
	args := []any{DeletedName, DeletedName}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent orders: %w", err)
	}

	out := make([]RecentOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecentOrder{
			OrderID:     row.Int64("id"),
			UserID:      row.Int64Ptr("user_id"),
			Username:    row.String("username"),
			ProductID:   row.Int64Ptr("product_id"),
			ProductName: row.String("product_name"),
			Category:    row.String("category"),
			Quantity:    row.Int64("quantity"),
			UnitPrice:   row.Float64("unit_price"),
			TotalPrice:  row.Float64("total_price"),
			Status:      OrderStatus(row.String("status")),
			OrderDate:   row.Time("order_date"),
		})
	}
	return out, nil
}

// GroupedBreakdown groups entity by groupColumn, ordered by aggregate
// descending and then by group value. An empty groupColumn uses the entity's
// category column.
func (db *DB) GroupedBreakdown(entity, groupColumn string) ([]Group, error) {
	const op = "grouped breakdown"
	def, err := lookupEntity(op, entity)
	if err != nil {
		return nil, err
	}
	if groupColumn == "" {
		groupColumn = def.category
	}
	if err := db.requireColumn(op, entity, groupColumn); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(CAST(%[1]s AS TEXT), '') AS group_value,
			COUNT(*) AS group_count,
			COALESCE(%[2]s, 0) AS group_aggregate
		FROM %[3]s
		GROUP BY %[1]s
		ORDER BY group_aggregate DESC, group_value ASC
	`, groupColumn, def.aggregate, entity)

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to group %s by %s: %w", entity, groupColumn, err)
	}

	groups := make([]Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, Group{
			Value:     row.String("group_value"),
			Count:     row.Int64("group_count"),
			Aggregate: row.Float64("group_aggregate"),
		})
	}
	return groups, nil
}

// TimeWindowed returns rows of entity whose timeColumn is at or after since,
// oldest first. Stored timestamps are fixed-width UTC text, so the comparison
// is a plain string comparison.
func (db *DB) TimeWindowed(entity, timeColumn string, since time.Time) ([]Row, error) {
	const op = "time windowed"
	def, err := lookupEntity(op, entity)
	if err != nil {
		return nil, err
	}
	if timeColumn == "" {
		timeColumn = def.time
	}
	if err := db.requireColumn(op, entity, timeColumn); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %[1]s WHERE %[2]s >= ? ORDER BY %[2]s, id", entity, timeColumn)
	rows, err := db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s since %s: %w", entity, FormatTime(since), err)
	}
	return rows, nil
}

// TopProducts ranks products by revenue from orders that were not cancelled.
func (db *DB) TopProducts(limit int) ([]ProductSales, error) {
	if limit <= 0 {
		return nil, validationError("top products", "limit must be positive, got %d", limit)
	}
	rows, err := db.Query(`
		SELECT p.id, p.name, p.category,
			SUM(o.quantity) AS units_sold,
			SUM(o.total_price) AS revenue
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.status != ?
		GROUP BY p.id
		ORDER BY revenue DESC, p.name ASC
		LIMIT ?
	`, string(OrderStatusCancelled), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top products: %w", err)
	}

	out := make([]ProductSales, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProductSales{
			ProductID: row.Int64("id"),
			Name:      row.String("name"),
			Category:  row.String("category"),
			UnitsSold: row.Int64("units_sold"),
			Revenue:   row.Float64("revenue"),
		})
	}
	return out, nil
}

// DashboardTotals returns the headline counts in one round trip.
func (db *DB) DashboardTotals() (Totals, error) {
	row, err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM users WHERE is_active = 1) AS active_users,
			(SELECT COUNT(*) FROM products) AS products,
			(SELECT COUNT(*) FROM orders) AS orders,
			(SELECT COALESCE(SUM(total_price), 0) FROM orders WHERE status != ?) AS revenue,
			(SELECT COUNT(*) FROM products WHERE stock_quantity < ?) AS low_stock
	`, string(OrderStatusCancelled), LowStockThreshold)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to get dashboard totals: %w", err)
	}
	return Totals{
		Users:       row.Int64("users"),
		ActiveUsers: row.Int64("active_users"),
		Products:    row.Int64("products"),
		Orders:      row.Int64("orders"),
		Revenue:     row.Float64("revenue"),
		LowStock:    row.Int64("low_stock"),
	}, nil
}

func (db *DB) requireColumn(op, table, col string) error {
	if err := checkIdentifier(op, "column", col); err != nil {
		return err
	}
	if HiddenColumn(col) {
		return validationError(op, "column %s is not accessible", col)
	}
	ok, err := db.hasColumn(table, col)
	if err != nil {
		return err
	}
	if !ok {
		return validationError(op, "table %s has no column %q", table, col)
	}
	return nil
}
