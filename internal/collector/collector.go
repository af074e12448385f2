package collector

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/config"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/sse"
)

const (
	DefaultSchedule            = "@every 30s"
	DefaultMaintenanceSchedule = "@daily"
	DefaultRetentionDays       = 30
)

// Metric names written by Sample.
const (
	MetricHeapAllocMB = "runtime.heap_alloc_mb"
	MetricGoroutines  = "runtime.goroutines"
	MetricGCCycles    = "runtime.gc_cycles"
	MetricOrders      = "store.orders"
	MetricRevenue     = "store.revenue"
	MetricActiveUsers = "store.active_users"
	MetricLowStock    = "store.low_stock"
)

// Publisher receives live events; *sse.Broker satisfies it.
type Publisher interface {
	Broadcast(event sse.Event)
}

// Config controls the scheduled jobs.
type Config struct {
	Enabled             bool
	Schedule            string
	MaintenanceSchedule string
	RetentionDays       int
}

// DefaultConfig returns the configuration used when no settings are stored.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Schedule:            DefaultSchedule,
		MaintenanceSchedule: DefaultMaintenanceSchedule,
		RetentionDays:       DefaultRetentionDays,
	}
}

// LoadConfig reads collector settings through loader.
func LoadConfig(loader *config.Loader) Config {
	cfg := DefaultConfig()
	cfg.Enabled = loader.Bool("collector.enabled", cfg.Enabled)
	cfg.Schedule = loader.String("collector.schedule", cfg.Schedule)
	cfg.MaintenanceSchedule = loader.String("maintenance.schedule", cfg.MaintenanceSchedule)
	if days := loader.Int("collector.retention_days", cfg.RetentionDays); days > 0 {
		cfg.RetentionDays = days
	}
	return cfg
}

// Collector samples runtime and store metrics into the metrics table on a
// cron schedule and ages old samples out. All writes go through the shared
// *database.DB, so they serialize with request handlers.
type Collector struct {
	db        *database.DB
	config    Config
	publisher Publisher
	cron      *cron.Cron
	now       func() time.Time
	mu        sync.Mutex
	running   bool

	sampleEntryID      cron.EntryID
	maintenanceEntryID cron.EntryID
}

// New creates a collector. publisher may be nil.
func New(db *database.DB, cfg Config, publisher Publisher) *Collector {
	return &Collector{
		db:        db,
		config:    cfg,
		publisher: publisher,
		cron:      cron.New(),
		now:       time.Now,
	}
}

// Start registers the jobs and starts the scheduler. A disabled collector
// does nothing and reports false.
func (c *Collector) Start() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return true, nil
	}
	if !c.config.Enabled {
		return false, nil
	}
	if err := c.addJobs(); err != nil {
		return false, err
	}

	c.cron.Start()
	c.running = true

	log.Info().
		Str("schedule", c.config.Schedule).
		Str("maintenance_schedule", c.config.MaintenanceSchedule).
		Int("retention_days", c.config.RetentionDays).
		Msg("Metrics collector started")

	return true, nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	ctx := c.cron.Stop()
	c.removeJobs()
	c.running = false
	c.mu.Unlock()

	// Jobs read the config under mu, so wait without holding it.
	<-ctx.Done()
	log.Info().Msg("Metrics collector stopped")
}

// UpdateConfig swaps in cfg. A running collector reschedules its jobs, and
// stops if cfg disables it. On an invalid schedule the previous config stays
// in effect.
func (c *Collector) UpdateConfig(cfg Config) error {
	c.mu.Lock()
	old := c.config
	c.config = cfg
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	if !cfg.Enabled {
		c.mu.Unlock()
		c.Stop()
		return nil
	}

	c.removeJobs()
	if err := c.addJobs(); err != nil {
		c.config = old
		if restoreErr := c.addJobs(); restoreErr != nil {
			log.Error().Err(restoreErr).Msg("Failed to restore previous collector schedule")
		}
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	log.Info().
		Str("schedule", cfg.Schedule).
		Str("maintenance_schedule", cfg.MaintenanceSchedule).
		Int("retention_days", cfg.RetentionDays).
		Msg("Metrics collector schedule updated")
	return nil
}

// Config returns the configuration in effect.
func (c *Collector) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// addJobs registers both jobs. Callers hold mu. Nothing stays registered
// when either schedule is invalid.
func (c *Collector) addJobs() error {
	id, err := c.cron.AddFunc(c.config.Schedule, c.scheduledSample)
	if err != nil {
		return fmt.Errorf("invalid collector schedule %q: %w", c.config.Schedule, err)
	}
	c.sampleEntryID = id

	id, err = c.cron.AddFunc(c.config.MaintenanceSchedule, c.scheduledMaintenance)
	if err != nil {
		c.removeJobs()
		return fmt.Errorf("invalid maintenance schedule %q: %w", c.config.MaintenanceSchedule, err)
	}
	c.maintenanceEntryID = id
	return nil
}

// removeJobs drops registered jobs. Callers hold mu.
func (c *Collector) removeJobs() {
	if c.sampleEntryID != 0 {
		c.cron.Remove(c.sampleEntryID)
		c.sampleEntryID = 0
	}
	if c.maintenanceEntryID != 0 {
		c.cron.Remove(c.maintenanceEntryID)
		c.maintenanceEntryID = 0
	}
}

// IsRunning returns whether the scheduler is active
func (c *Collector) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Sample records one value for every metric and returns what was written.
func (c *Collector) Sample() ([]*database.Metric, error) {
	at := c.now()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	totals, err := c.db.DashboardTotals()
	if err != nil {
		return nil, fmt.Errorf("failed to read store totals: %w", err)
	}

	values := []struct {
		name  string
		value float64
	}{
		{MetricHeapAllocMB, float64(mem.HeapAlloc) / (1024 * 1024)},
		{MetricGoroutines, float64(runtime.NumGoroutine())},
		{MetricGCCycles, float64(mem.NumGC)},
		{MetricOrders, float64(totals.Orders)},
		{MetricRevenue, totals.Revenue},
		{MetricActiveUsers, float64(totals.ActiveUsers)},
		{MetricLowStock, float64(totals.LowStock)},
	}

	metrics := make([]*database.Metric, 0, len(values))
	for _, v := range values {
		m, err := c.db.RecordMetric(v.name, v.value, at)
		if err != nil {
			return metrics, err
		}
		metrics = append(metrics, m)
	}

	log.Trace().Int("count", len(metrics)).Msg("Metrics sampled")
	c.publish(sse.EventMetricsSampled, metrics)
	return metrics, nil
}

// Maintain prunes samples older than the retention window and refreshes
// planner statistics. It returns the number of pruned samples.
func (c *Collector) Maintain() (int64, error) {
	cutoff := c.now().AddDate(0, 0, -c.Config().RetentionDays)

	pruned, err := c.db.PruneMetrics(cutoff)
	if err != nil {
		return 0, err
	}
	if err := c.db.Optimize(); err != nil {
		return pruned, err
	}

	log.Info().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("Metrics maintenance completed")
	c.publish(sse.EventMaintenanceRun, map[string]any{
		"pruned": pruned,
		"cutoff": database.FormatTime(cutoff),
	})
	return pruned, nil
}

func (c *Collector) scheduledSample() {
	if _, err := c.Sample(); err != nil {
		log.Error().Err(err).Msg("Scheduled metrics sample failed")
	}
}

func (c *Collector) scheduledMaintenance() {
	if _, err := c.Maintain(); err != nil {
		log.Error().Err(err).Msg("Scheduled metrics maintenance failed")
		c.publish(sse.EventMaintenanceFailed, map[string]any{"error": err.Error()})
	}
}

func (c *Collector) publish(eventType sse.EventType, data any) {
	if c.publisher != nil {
		c.publisher.Broadcast(sse.Event{Type: eventType, Data: data})
	}
}
