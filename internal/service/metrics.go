package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Metric names written by the monitoring job and the status summary
const (
	MetricTotalProcesses     = "total_processes"
	MetricTotalMovements     = "total_movements"
	MetricMonitoredActive    = "monitored_active"
	MetricMonitoredSuspended = "monitored_suspended"
	MetricMonitoredFailing   = "monitored_failing"
	MetricDueNow             = "due_now"
	MetricLastRunAt          = "monitor_last_run_at"
	MetricLastUpdated        = "monitor_last_updated"
	MetricLastFailed         = "monitor_last_failed"
)

// MetricsService calculates and stores system-wide metrics
type MetricsService struct {
	db  *sql.DB
	now func() time.Time
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(db *sql.DB) *MetricsService {
	return &MetricsService{db: db, now: utcNow}
}

// SystemMetrics represents calculated system-wide metrics
type SystemMetrics struct {
	TotalProcesses     int
	TotalMovements     int
	MonitoredActive    int
	MonitoredSuspended int
	MonitoredFailing   int
	DueNow             int
}

// Calculate computes the current system metrics without storing them
func (m *MetricsService) Calculate(ctx context.Context) (*SystemMetrics, error) {
	metrics := &SystemMetrics{}
	now := m.now()

	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM judicial_processes`).Scan(&metrics.TotalProcesses)
	if err != nil {
		return nil, fmt.Errorf("failed to count processes: %w", err)
	}

	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM judicial_movements`).Scan(&metrics.TotalMovements)
	if err != nil {
		return nil, fmt.Errorf("failed to count movements: %w", err)
	}

	statusQuery := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'suspended' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' AND next_check_at <= $1 THEN 1 ELSE 0 END), 0)
		FROM monitored_processes
	`
	err = m.db.QueryRowContext(ctx, statusQuery, now).Scan(
		&metrics.MonitoredActive,
		&metrics.MonitoredSuspended,
		&metrics.MonitoredFailing,
		&metrics.DueNow,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count monitored processes: %w", err)
	}

	return metrics, nil
}

// CalculateAndStore calculates system metrics and stores them
func (m *MetricsService) CalculateAndStore(ctx context.Context) (*SystemMetrics, error) {
	metrics, err := m.Calculate(ctx)
	if err != nil {
		return nil, err
	}

	at := m.now()
	values := []struct {
		name  string
		value int
	}{
		{MetricTotalProcesses, metrics.TotalProcesses},
		{MetricTotalMovements, metrics.TotalMovements},
		{MetricMonitoredActive, metrics.MonitoredActive},
		{MetricMonitoredSuspended, metrics.MonitoredSuspended},
		{MetricMonitoredFailing, metrics.MonitoredFailing},
		{MetricDueNow, metrics.DueNow},
	}
	for _, v := range values {
		if err := m.storeMetric(ctx, v.name, strconv.Itoa(v.value), at); err != nil {
			return nil, err
		}
	}

	return metrics, nil
}

// RecordRun stores the outcome of a monitoring run
func (m *MetricsService) RecordRun(ctx context.Context, stats *MonitorStats, at time.Time) error {
	if err := m.storeMetric(ctx, MetricLastRunAt, at.UTC().Format(time.RFC3339), at); err != nil {
		return err
	}
	if err := m.storeMetric(ctx, MetricLastUpdated, strconv.Itoa(stats.Updated), at); err != nil {
		return err
	}
	return m.storeMetric(ctx, MetricLastFailed, strconv.Itoa(stats.Failed), at)
}

// storeMetric stores a single metric value
func (m *MetricsService) storeMetric(ctx context.Context, name, value string, at time.Time) error {
	query := `
		INSERT INTO metrics (metric_name, metric_value, calculated_at)
		VALUES ($1, $2, $3)
	`

	_, err := m.db.ExecContext(ctx, query, name, value, at)
	if err != nil {
		return fmt.Errorf("failed to store metric %s: %w", name, err)
	}

	return nil
}

// GetLatestMetrics retrieves the most recent value of every metric
func (m *MetricsService) GetLatestMetrics(ctx context.Context) (map[string]string, error) {
	query := `
		SELECT m.metric_name, m.metric_value
		FROM metrics m
		WHERE m.id = (
			SELECT id FROM metrics
			WHERE metric_name = m.metric_name
			ORDER BY calculated_at DESC, id DESC
			LIMIT 1
		)
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	defer rows.Close()

	metrics := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics[name] = value
	}

	return metrics, rows.Err()
}
