package sampledata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/database"
)

// Options control how much data Generate writes.
type Options struct {
	Users    int
	Products int
	Orders   int
	// Days spreads order dates over this many days before Now
	Days int
	Seed uint64
	Now  time.Time
}

// DefaultOptions returns a small dataset suitable for a demo dashboard.
func DefaultOptions() Options {
	return Options{Users: 10, Products: 20, Orders: 100, Days: 30, Seed: 1}
}

// Result counts the rows written.
type Result struct {
	Users    int `json:"users"`
	Products int `json:"products"`
	Orders   int `json:"orders"`
}

var (
	firstNames = []string{"Alice", "Bob", "Carol", "David", "Eve", "Frank", "Grace", "Heidi", "Ivan", "Judy", "Mallory", "Oscar"}
	lastNames  = []string{"Smith", "Johnson", "Brown", "Garcia", "Miller", "Davis", "Wilson", "Moore", "Taylor", "Clark"}
	roles      = []string{database.RoleUser, database.RoleUser, database.RoleUser, database.RoleManager}

	catalog = map[string][]string{
		"Electronics": {"Laptop", "Monitor", "Keyboard", "Mouse", "Headphones", "Webcam"},
		"Furniture":   {"Desk", "Chair", "Bookshelf", "Lamp", "Cabinet"},
		"Books":       {"Go Handbook", "SQL Primer", "Design Patterns", "Data Atlas"},
		"Office":      {"Notebook", "Pen Set", "Stapler", "Whiteboard", "Planner"},
	}
	categories = []string{"Books", "Electronics", "Furniture", "Office"}

	statuses = []database.OrderStatus{
		database.OrderStatusCompleted,
		database.OrderStatusCompleted,
		database.OrderStatusCompleted,
		database.OrderStatusPending,
		database.OrderStatusProcessing,
		database.OrderStatusCancelled,
	}
)

// Generate inserts random users, products and orders. The same Seed
// produces the same data. Usernames get a numeric suffix so repeated runs
// against one database do not collide.
func Generate(db *database.DB, opts Options) (Result, error) {
	if opts.Users < 0 || opts.Products < 0 || opts.Orders < 0 {
		return Result{}, fmt.Errorf("sample counts must not be negative")
	}
	if opts.Orders > 0 && opts.Products == 0 {
		return Result{}, fmt.Errorf("orders need at least one product")
	}
	if opts.Days <= 0 {
		opts.Days = 1
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	var res Result

	existing, err := db.QueryRow("SELECT COALESCE(MAX(id), 0) AS n FROM users")
	if err != nil {
		return res, err
	}
	offset := existing.Int64("n")

	userIDs := make([]int64, 0, opts.Users)
	for i := range opts.Users {
		first := firstNames[rng.IntN(len(firstNames))]
		last := lastNames[rng.IntN(len(lastNames))]
		username := fmt.Sprintf("%s.%s%d", strings.ToLower(first), strings.ToLower(last), offset+int64(i)+1)
		u, err := db.CreateUser(database.NewUser{
			Username: username,
			Email:    username + "@example.com",
			FullName: first + " " + last,
			Role:     roles[rng.IntN(len(roles))],
		})
		if err != nil {
			return res, fmt.Errorf("failed to create sample user: %w", err)
		}
		userIDs = append(userIDs, u.ID)
		res.Users++
	}

	productIDs := make([]int64, 0, opts.Products)
	for range opts.Products {
		category := categories[rng.IntN(len(categories))]
		names := catalog[category]
		price := math.Round((5+rng.Float64()*495)*100) / 100
		p, err := db.CreateProduct(database.Product{
			Name:          names[rng.IntN(len(names))],
			Description:   "Sample " + strings.ToLower(category) + " item",
			Price:         price,
			Category:      category,
			StockQuantity: int64(rng.IntN(100)),
		})
		if err != nil {
			return res, fmt.Errorf("failed to create sample product: %w", err)
		}
		productIDs = append(productIDs, p.ID)
		res.Products++
	}

	window := time.Duration(opts.Days) * 24 * time.Hour
	for range opts.Orders {
		order := database.NewOrder{
			ProductID: productIDs[rng.IntN(len(productIDs))],
			Quantity:  int64(1 + rng.IntN(5)),
			Status:    statuses[rng.IntN(len(statuses))],
			OrderDate: opts.Now.Add(-time.Duration(rng.Int64N(int64(window)))),
		}
		if len(userIDs) > 0 {
			id := userIDs[rng.IntN(len(userIDs))]
			order.UserID = &id
		}
		if _, err := db.RecordOrder(order); err != nil {
			return res, fmt.Errorf("failed to create sample order: %w", err)
		}
		res.Orders++
	}

	log.Info().
		Int("users", res.Users).
		Int("products", res.Products).
		Int("orders", res.Orders).
		Msg("Sample data generated")

	return res, nil
}
