package database

import (
	"fmt"
	"time"
)

// Metric is one sample of a named time series.
type Metric struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordMetric appends a sample. A zero time means now.
func (db *DB) RecordMetric(name string, value float64, at time.Time) (*Metric, error) {
	if err := requireText("record metric", "name", name); err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC().Truncate(time.Millisecond)

	id, err := db.Insert("metrics", Fields{
		"name":        name,
		"value":       value,
		"recorded_at": at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record metric %s: %w", name, err)
	}
	return &Metric{ID: id, Name: name, Value: value, RecordedAt: at}, nil
}

// ListMetrics returns samples of name recorded at or after since, oldest first.
func (db *DB) ListMetrics(name string, since time.Time) ([]*Metric, error) {
	rows, err := db.Query(`
		SELECT id, name, value, recorded_at FROM metrics
		WHERE name = ? AND recorded_at >= ?
		ORDER BY recorded_at, id
	`, name, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics %s: %w", name, err)
	}
	metrics := make([]*Metric, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, metricFromRow(row))
	}
	return metrics, nil
}

// LatestMetrics returns the newest sample of every series.
func (db *DB) LatestMetrics() ([]*Metric, error) {
	rows, err := db.Query(`
		SELECT m.id, m.name, m.value, m.recorded_at FROM metrics m
		WHERE m.id = (
			SELECT id FROM metrics WHERE name = m.name
			ORDER BY recorded_at DESC, id DESC LIMIT 1
		)
		ORDER BY m.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest metrics: %w", err)
	}
	metrics := make([]*Metric, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, metricFromRow(row))
	}
	return metrics, nil
}

// PruneMetrics deletes samples recorded before the cutoff.
func (db *DB) PruneMetrics(before time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM metrics WHERE recorded_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune metrics: %w", err)
	}
	return res.RowsAffected, nil
}

func metricFromRow(row Row) *Metric {
	return &Metric{
		ID:         row.Int64("id"),
		Name:       row.String("name"),
		Value:      row.Float64("value"),
		RecordedAt: row.Time("recorded_at"),
	}
}
