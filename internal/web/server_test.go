package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/saltyorg/dashstore/internal/auth"
	"github.com/saltyorg/dashstore/internal/config"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/sse"
)

const testPassword = "correct-horse"

func newTestServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.EnsureSchema(); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}

	svc := auth.NewService(db)
	for _, u := range []database.NewUser{
		{Username: "admin", Email: "admin@example.com", Role: database.RoleAdmin},
		{Username: "viewer", Email: "viewer@example.com", Role: database.RoleUser},
	} {
		if _, err := svc.Register(u, testPassword); err != nil {
			t.Fatalf("failed to register %s: %v", u.Username, err)
		}
	}

	timeouts := config.DefaultTimeouts()
	timeouts.WebSocketPing = time.Second
	s := NewServer(db, "127.0.0.1:0", timeouts)
	t.Cleanup(func() {
		s.SSEBroker().Stop()
		_ = db.Close()
	})
	return s, db
}

func do(t *testing.T, s *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.SetBasicAuth(user, testPassword)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestTables_ReadHidesPasswordHash(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/tables/users?order_by=username", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	rows := decode[[]map[string]any](t, rec)
	if len(rows) != 2 {
		t.Fatalf("expected 2 users, got %d", len(rows))
	}
	for _, row := range rows {
		if _, ok := row["password_hash"]; ok {
			t.Fatalf("password_hash leaked: %v", row)
		}
	}
	if rows[0]["username"] != "admin" {
		t.Fatalf("expected admin first, got %v", rows[0]["username"])
	}

	if rec := do(t, s, http.MethodGet, "/api/tables/users?password_hash=x", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when filtering on password_hash, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/tables/settings", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unexposed table, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/tables/users?nope%20x=1", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad column, got %d", rec.Code)
	}
}

func TestTables_WritePermissions(t *testing.T) {
	s, _ := newTestServer(t)
	product := map[string]any{"name": "Desk", "price": 120.5, "category": "Furniture", "stock_quantity": 4}

	if rec := do(t, s, http.MethodPost, "/api/tables/products", "", product); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/tables/products", "viewer", product); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/api/tables/products", "admin", product)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	id := decode[map[string]int64](t, rec)["id"]

	rec = do(t, s, http.MethodGet, "/api/tables/products/"+itoa(id), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec); got["name"] != "Desk" || got["price"] != 120.5 {
		t.Fatalf("unexpected product %v", got)
	}

	rec = do(t, s, http.MethodPut, "/api/tables/products", "admin", map[string]any{
		"set":   map[string]any{"stock_quantity": 9},
		"where": map[string]any{"id": id},
	})
	if rec.Code != http.StatusOK || decode[map[string]int64](t, rec)["affected"] != 1 {
		t.Fatalf("unexpected update response %d: %s", rec.Code, rec.Body)
	}

	if rec := do(t, s, http.MethodPost, "/api/tables/products", "admin", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty insert, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/tables/products", "admin", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unfiltered delete, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/tables/users", "admin", map[string]any{"username": "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for read-only table, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/tables/products/999", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing row, got %d", rec.Code)
	}
}

func TestTables_MetricsAreAppendOnly(t *testing.T) {
	s, db := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/tables/metrics", "admin", map[string]any{"name": "cpu", "value": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	id := decode[map[string]int64](t, rec)["id"]

	rec = do(t, s, http.MethodPut, "/api/tables/metrics", "admin", map[string]any{
		"set":   map[string]any{"value": 999},
		"where": map[string]any{"id": id},
	})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for metrics update, got %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodDelete, "/api/tables/metrics?id="+itoa(id), "admin", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for metrics delete, got %d", rec.Code)
	}

	metrics, err := db.ListMetrics("cpu", time.Time{})
	if err != nil {
		t.Fatalf("ListMetrics returned error: %v", err)
	}
	if len(metrics) != 1 || metrics[0].Value != 1 {
		t.Fatalf("expected stored sample to be unchanged, got %+v", metrics)
	}
}

func TestTables_RejectsNonScalarValues(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/tables/products", "admin", map[string]any{"name": map[string]any{"x": 1}, "price": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for object value, got %d: %s", rec.Code, rec.Body)
	}
	rec = do(t, s, http.MethodPut, "/api/tables/products", "admin", map[string]any{
		"set":   map[string]any{"name": "Desk"},
		"where": map[string]any{"id": []any{1, 2}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for array value, got %d: %s", rec.Code, rec.Body)
	}
}

func TestReports_RefusePasswordHash(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{
		"/api/breakdown/users?by=password_hash",
		"/api/breakdown/users?by=PASSWORD_HASH",
		"/api/window/users?column=password_hash&since=2000-01-01",
		"/api/tables/users?order_by=role,password_hash%20DESC",
	} {
		rec := do(t, s, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("GET %s: expected 400, got %d", path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "$2a$") {
			t.Fatalf("GET %s leaked a password hash: %s", path, rec.Body)
		}
	}
}

func TestOrders_RecordAndPublish(t *testing.T) {
	s, db := newTestServer(t)
	product, err := db.CreateProduct(database.Product{Name: "Lamp", Price: 19.99, StockQuantity: 50})
	if err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}

	client, unsubscribe := s.SSEBroker().Subscribe()
	defer unsubscribe()

	rec := do(t, s, http.MethodPost, "/api/orders", "viewer", map[string]any{"product_id": product.ID, "quantity": 7})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	order := decode[database.Order](t, rec)
	if order.TotalPrice != 139.93 {
		t.Fatalf("expected total 139.93, got %v", order.TotalPrice)
	}
	if order.UserID == nil {
		t.Fatal("expected order to belong to the caller")
	}

	select {
	case msg := <-client.Messages:
		if msg.Type != sse.EventOrderRecorded {
			t.Fatalf("expected order event, got %s", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for order event")
	}

	path := "/api/orders/" + itoa(order.ID) + "/status"
	if rec := do(t, s, http.MethodPatch, path, "viewer", map[string]string{"status": "completed"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPatch, path, "admin", map[string]string{"status": "lost"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPatch, path, "admin", map[string]string{"status": "completed"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodPatch, "/api/orders/999/status", "admin", map[string]string{"status": "completed"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing order, got %d", rec.Code)
	}

	if rec := do(t, s, http.MethodDelete, "/api/tables/products?id="+itoa(product.ID), "admin", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting an ordered product, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/orders?status=completed", "", nil)
	if orders := decode[[]database.Order](t, rec); len(orders) != 1 {
		t.Fatalf("expected 1 completed order, got %d", len(orders))
	}
}

func TestLogin(t *testing.T) {
	s, db := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/login", "", map[string]string{"username": "viewer", "password": testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("login response leaked password data: %s", rec.Body)
	}

	user, err := db.GetUserByUsername("viewer")
	if err != nil {
		t.Fatalf("GetUserByUsername returned error: %v", err)
	}
	if user.LastLogin == nil {
		t.Fatal("expected last login to be recorded")
	}

	rec = do(t, s, http.MethodPost, "/api/login", "", map[string]string{"username": "viewer", "password": "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDashboardEndpoints(t *testing.T) {
	s, db := newTestServer(t)
	product, err := db.CreateProduct(database.Product{Name: "Chair", Price: 50, Category: "Furniture", StockQuantity: 3})
	if err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}
	if _, err := db.RecordOrder(database.NewOrder{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("RecordOrder returned error: %v", err)
	}

	rec := do(t, s, http.MethodGet, "/api/summary/orders", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if summary := decode[database.Summary](t, rec); summary.Count != 1 || summary.Sum != 100 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = do(t, s, http.MethodGet, "/api/summary", "", nil)
	if summaries := decode[[]database.Summary](t, rec); len(summaries) != len(database.Entities()) {
		t.Fatalf("expected a summary per entity, got %+v", summaries)
	}

	if rec := do(t, s, http.MethodGet, "/api/summary/secrets", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown entity, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/recent?limit=5", "", nil)
	if recent := decode[[]database.RecentOrder](t, rec); len(recent) != 1 || recent[0].ProductName != "Chair" {
		t.Fatalf("unexpected recent orders %+v", recent)
	}

	rec = do(t, s, http.MethodGet, "/api/breakdown/products?by=category", "", nil)
	if groups := decode[[]database.Group](t, rec); len(groups) != 1 || groups[0].Value != "Furniture" {
		t.Fatalf("unexpected breakdown %+v", groups)
	}

	if rec := do(t, s, http.MethodGet, "/api/window/orders?since=not-a-date", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/window/orders?since=2000-01-01", "", nil)
	if rows := decode[[]map[string]any](t, rec); len(rows) != 1 {
		t.Fatalf("expected 1 windowed order, got %d", len(rows))
	}

	rec = do(t, s, http.MethodGet, "/api/totals", "", nil)
	if totals := decode[database.Totals](t, rec); totals.Orders != 1 || totals.Revenue != 100 || totals.LowStock != 1 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	rec = do(t, s, http.MethodGet, "/api/reports/inventory?format=csv", "", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected csv report response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "Chair") {
		t.Fatalf("expected csv to contain product, got %s", rec.Body)
	}
	if rec := do(t, s, http.MethodGet, "/api/reports/inventory?format=xml", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/api/settings", "viewer", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/settings", "admin", map[string]string{"log.level": "loud"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid log level, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/settings", "admin", map[string]string{"made.up": "1"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown key, got %d", rec.Code)
	}

	called := false
	s.Handlers().SetSettingsHook(func() { called = true })
	if rec := do(t, s, http.MethodPut, "/api/settings", "admin", map[string]string{"dashboard.recent_limit": "5"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if !called {
		t.Fatal("expected settings hook to run")
	}
	rec := do(t, s, http.MethodGet, "/api/settings", "admin", nil)
	if settings := decode[map[string]string](t, rec); settings["dashboard.recent_limit"] != "5" {
		t.Fatalf("unexpected settings %v", settings)
	}

	rec = do(t, s, http.MethodPost, "/api/users", "admin", map[string]string{
		"username": "carol", "email": "carol@example.com", "role": "manager", "password": "short",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/api/users", "admin", map[string]string{
		"username": "carol", "email": "carol@example.com", "role": "manager", "password": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodGet, "/api/me", "carol", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected new user to authenticate, got %d", rec.Code)
	}

	dest := t.TempDir() + "/backup.db"
	if rec := do(t, s, http.MethodPost, "/api/maintenance/backup", "admin", map[string]string{"path": "relative.db"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for relative path, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/maintenance/backup", "admin", map[string]string{"path": dest}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodPost, "/api/maintenance/backup", "admin", map[string]string{"path": dest}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for existing destination, got %d", rec.Code)
	}
}

func TestEventsWebSocket(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.SSEBroker().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.SSEBroker().Broadcast(sse.Event{Type: sse.EventBackupCompleted, Data: map[string]string{"path": "/tmp/x.db"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var event sse.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Type != sse.EventBackupCompleted {
		t.Fatalf("expected backup event, got %s", event.Type)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
