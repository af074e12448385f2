package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saltyorg/dashstore/internal/database"
)

// Kind selects which rows a report contains.
type Kind string

const (
	KindSales     Kind = "sales"
	KindInventory Kind = "inventory"
	KindUsers     Kind = "users"
	KindMetrics   Kind = "metrics"
)

// Kinds lists every report kind.
func Kinds() []Kind {
	return []Kind{KindSales, KindInventory, KindUsers, KindMetrics}
}

// Options narrow a report. The zero value reports everything.
type Options struct {
	Since time.Time
	Limit int
}

// Report is a self-describing result set ready to be written out.
type Report struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Title       string            `json:"title"`
	GeneratedAt time.Time         `json:"generated_at"`
	Summary     *database.Summary `json:"summary,omitempty"`
	Breakdown   []database.Group  `json:"breakdown,omitempty"`
	Columns     []string          `json:"columns"`
	Rows        []database.Row    `json:"rows"`
}

// Build queries db for the rows, summary and breakdown of one report kind.
func Build(db *database.DB, kind Kind, opts Options) (*Report, error) {
	r := &Report{
		ID:          uuid.NewString(),
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
	}

	var entity string
	switch kind {
	case KindSales:
		entity = "orders"
		r.Title = "Sales Report"
		recent, err := db.JoinedRecent(opts.Limit, true)
		if err != nil {
			return nil, err
		}
		r.Columns = []string{"order_id", "order_date", "username", "product_name", "category", "quantity", "unit_price", "total_price", "status"}
		for _, o := range recent {
			if !opts.Since.IsZero() && o.OrderDate.Before(opts.Since) {
				continue
			}
			r.Rows = append(r.Rows, database.Row{
				"order_id":     o.OrderID,
				"order_date":   database.FormatTime(o.OrderDate),
				"username":     o.Username,
				"product_name": o.ProductName,
				"category":     o.Category,
				"quantity":     o.Quantity,
				"unit_price":   o.UnitPrice,
				"total_price":  o.TotalPrice,
				"status":       string(o.Status),
			})
		}
	case KindInventory, KindUsers, KindMetrics:
		entity = map[Kind]string{KindInventory: "products", KindUsers: "users", KindMetrics: "metrics"}[kind]
		r.Title = strings.ToUpper(string(kind[:1])) + string(kind[1:]) + " Report"
		rows, err := db.TimeWindowed(entity, "", opts.Since)
		if err != nil {
			return nil, err
		}
		if opts.Limit > 0 && len(rows) > opts.Limit {
			rows = rows[len(rows)-opts.Limit:]
		}
		cols, err := db.TableInfo(entity)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			if !database.HiddenColumn(c.Name) {
				r.Columns = append(r.Columns, c.Name)
			}
		}
		for _, row := range rows {
			for col := range row {
				if database.HiddenColumn(col) {
					delete(row, col)
				}
			}
			r.Rows = append(r.Rows, row)
		}
	default:
		return nil, fmt.Errorf("unknown report kind %q", kind)
	}

	summary, err := db.Summary(entity)
	if err != nil {
		return nil, err
	}
	r.Summary = &summary

	breakdown, err := db.GroupedBreakdown(entity, "")
	if err != nil {
		return nil, err
	}
	r.Breakdown = breakdown

	if r.Rows == nil {
		r.Rows = []database.Row{}
	}
	return r, nil
}
