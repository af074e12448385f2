package collector

import (
	"sync"
	"testing"
	"time"

	"github.com/saltyorg/dashstore/internal/config"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/sse"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (p *recordingPublisher) Broadcast(event sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []sse.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sse.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	return db
}

func TestSample_RecordsEveryMetric(t *testing.T) {
	db := newTestDB(t)
	pub := &recordingPublisher{}
	c := New(db, DefaultConfig(), pub)

	product, err := db.CreateProduct(database.Product{Name: "Chair", Price: 25, StockQuantity: 3})
	if err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}
	if _, err := db.RecordOrder(database.NewOrder{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("RecordOrder returned error: %v", err)
	}

	metrics, err := c.Sample()
	if err != nil {
		t.Fatalf("Sample returned error: %v", err)
	}
	if len(metrics) != 7 {
		t.Fatalf("expected 7 metrics, got %d", len(metrics))
	}

	byName := make(map[string]float64)
	for _, m := range metrics {
		byName[m.Name] = m.Value
	}
	if byName[MetricOrders] != 1 || byName[MetricRevenue] != 50 || byName[MetricLowStock] != 1 {
		t.Fatalf("unexpected store metrics %v", byName)
	}
	if byName[MetricGoroutines] < 1 {
		t.Fatalf("expected at least one goroutine, got %v", byName[MetricGoroutines])
	}

	if types := pub.types(); len(types) != 1 || types[0] != sse.EventMetricsSampled {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestMaintain_PrunesOutsideRetention(t *testing.T) {
	db := newTestDB(t)
	pub := &recordingPublisher{}
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	cfg := DefaultConfig()
	cfg.RetentionDays = 7
	c := New(db, cfg, pub)
	c.now = func() time.Time { return now }

	for _, age := range []int{1, 6, 8, 40} {
		if _, err := db.RecordMetric("cpu", float64(age), now.AddDate(0, 0, -age)); err != nil {
			t.Fatalf("RecordMetric returned error: %v", err)
		}
	}

	pruned, err := c.Maintain()
	if err != nil {
		t.Fatalf("Maintain returned error: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 samples pruned, got %d", pruned)
	}

	left, err := db.ListMetrics("cpu", time.Time{})
	if err != nil {
		t.Fatalf("ListMetrics returned error: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected 2 samples left, got %d", len(left))
	}
	if types := pub.types(); len(types) != 1 || types[0] != sse.EventMaintenanceRun {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestStart_RespectsConfig(t *testing.T) {
	db := newTestDB(t)

	disabled := DefaultConfig()
	disabled.Enabled = false
	c := New(db, disabled, nil)
	started, err := c.Start()
	if err != nil || started {
		t.Fatalf("expected disabled collector not to start, got %v, %v", started, err)
	}

	bad := DefaultConfig()
	bad.Schedule = "every now and then"
	if _, err := New(db, bad, nil).Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}

	c = New(db, DefaultConfig(), nil)
	started, err = c.Start()
	if err != nil || !started {
		t.Fatalf("expected collector to start, got %v, %v", started, err)
	}
	if !c.IsRunning() {
		t.Fatal("expected collector to be running")
	}
	c.Stop()
	c.Stop()
	if c.IsRunning() {
		t.Fatal("expected collector to be stopped")
	}
}

func TestLoadConfig_FromSettings(t *testing.T) {
	db := newTestDB(t)
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults returned error: %v", err)
	}
	if err := db.SetSetting("collector.retention_days", "3"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}
	if err := db.SetSetting("collector.enabled", "false"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}

	cfg := LoadConfig(config.NewLoader(db))
	if cfg.Enabled || cfg.RetentionDays != 3 || cfg.Schedule != DefaultSchedule {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestStart_RegistersJobsOnce(t *testing.T) {
	db := newTestDB(t)

	badMaintenance := DefaultConfig()
	badMaintenance.MaintenanceSchedule = "whenever"
	c := New(db, badMaintenance, nil)
	if _, err := c.Start(); err == nil {
		t.Fatal("expected error for invalid maintenance schedule")
	}
	if n := len(c.cron.Entries()); n != 0 {
		t.Fatalf("expected no jobs left after failed start, got %d", n)
	}

	c = New(db, DefaultConfig(), nil)
	for range 2 {
		if _, err := c.Start(); err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
		c.Stop()
	}
	if _, err := c.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer c.Stop()
	if n := len(c.cron.Entries()); n != 2 {
		t.Fatalf("expected 2 jobs after restarts, got %d", n)
	}
}

func TestUpdateConfig(t *testing.T) {
	db := newTestDB(t)
	c := New(db, DefaultConfig(), nil)
	if _, err := c.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer c.Stop()

	bad := DefaultConfig()
	bad.Schedule = "sometimes"
	if err := c.UpdateConfig(bad); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if got := c.Config().Schedule; got != DefaultSchedule {
		t.Fatalf("expected previous schedule to stay, got %q", got)
	}
	if n := len(c.cron.Entries()); n != 2 {
		t.Fatalf("expected previous jobs to stay registered, got %d", n)
	}

	next := DefaultConfig()
	next.Schedule = "@every 1m"
	next.RetentionDays = 2
	if err := c.UpdateConfig(next); err != nil {
		t.Fatalf("UpdateConfig returned error: %v", err)
	}
	if n := len(c.cron.Entries()); n != 2 {
		t.Fatalf("expected 2 jobs after reschedule, got %d", n)
	}

	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	if _, err := db.RecordMetric("cpu", 1, now.AddDate(0, 0, -3)); err != nil {
		t.Fatalf("RecordMetric returned error: %v", err)
	}
	pruned, err := c.Maintain()
	if err != nil {
		t.Fatalf("Maintain returned error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected new retention to prune 1 sample, got %d", pruned)
	}

	off := next
	off.Enabled = false
	if err := c.UpdateConfig(off); err != nil {
		t.Fatalf("UpdateConfig returned error: %v", err)
	}
	if c.IsRunning() {
		t.Fatal("expected disabled collector to stop")
	}
}
