package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/store"
)

const (
	noDueProcessesMessage = "Nenhum processo para atualizar"
	updatedMessageFormat  = "%d processo(s) atualizado(s)"
	jobFailedMessage      = "Erro ao executar monitoramento"

	defaultBatchSize = 10
	defaultClaimTTL  = 10 * time.Minute
	maxErrorLength   = 500
)

// MonitorRepository is the scheduling state used by the monitoring job
type MonitorRepository interface {
	ClaimDue(ctx context.Context, now time.Time, limit int, ttl time.Duration) ([]model.MonitoredProcess, error)
	RecordSuccess(ctx context.Context, id int64, claimToken string, checkedAt, nextCheckAt time.Time) error
	RecordFailure(ctx context.Context, id int64, claimToken string, failedAt time.Time, reason string, retryAfter time.Time, maxFailures int) (int, model.MonitorStatus, error)
	ReleaseClaim(ctx context.Context, id int64, claimToken string) error
}

// RunRecorder stores the outcome of a monitoring run
type RunRecorder interface {
	RecordRun(ctx context.Context, stats *MonitorStats, at time.Time) error
}

// MonitorOptions tunes a monitoring batch
type MonitorOptions struct {
	BatchSize              int
	ClaimTTL               time.Duration
	FailureBackoff         time.Duration
	MaxConsecutiveFailures int
}

// MonitorOptionsFromConfig converts the monitoring config section
func MonitorOptionsFromConfig(cfg config.MonitoringConfig) MonitorOptions {
	return MonitorOptions{
		BatchSize:              cfg.BatchSize,
		ClaimTTL:               cfg.ClaimTTL.Duration,
		FailureBackoff:         cfg.FailureBackoff.Duration,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}
}

// MonitorStats tracks a monitoring batch
type MonitorStats struct {
	Claimed      int
	Updated      int
	Failed       int
	DeadLettered int
	// Lost counts checks whose claim expired and was taken by another run
	Lost         int
	NewMovements int
	Duration     time.Duration
}

// JobResult is the externally visible outcome of a monitoring run
type JobResult struct {
	Success bool   `json:"success"`
	Updated *int   `json:"updated,omitempty"`
	Failed  int    `json:"failed,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Monitor refreshes due monitored processes against DataJud
type Monitor struct {
	client    CourtClient
	processes *ProcessService
	monitors  MonitorRepository
	recorder  RunRecorder
	opts      MonitorOptions
	now       func() time.Time
	logger    *log.Logger
	errLogger *log.Logger
}

// NewMonitor creates a new Monitor. recorder may be nil.
func NewMonitor(client CourtClient, processes *ProcessService, monitors MonitorRepository, recorder RunRecorder, opts MonitorOptions) *Monitor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = defaultClaimTTL
	}

	return &Monitor{
		client:    client,
		processes: processes,
		monitors:  monitors,
		recorder:  recorder,
		opts:      opts,
		now:       utcNow,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
		errLogger: log.New(os.Stderr, "ERROR: ", log.LstdFlags),
	}
}

// RunBatch claims up to BatchSize due processes and checks them one by one.
// A failed check is recorded and the batch moves on.
func (m *Monitor) RunBatch(ctx context.Context) (*MonitorStats, error) {
	stats := &MonitorStats{}
	started := m.now()

	claimed, err := m.monitors.ClaimDue(ctx, started, m.opts.BatchSize, m.opts.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to select due processes: %w", err)
	}

	stats.Claimed = len(claimed)
	if stats.Claimed == 0 {
		m.logger.Println("No monitored processes due")
		return stats, nil
	}
	m.logger.Printf("Found %d monitored process(es) due", stats.Claimed)

	for idx, mp := range claimed {
		select {
		case <-ctx.Done():
			m.releaseClaims(claimed[idx:])
			stats.Duration = m.now().Sub(started)
			return stats, ctx.Err()
		default:
		}

		progress := fmt.Sprintf("[%d/%d]", idx+1, stats.Claimed)
		m.logger.Printf("%s Checking process %s (%s)...", progress, mp.CNJNumber, mp.Frequency)

		if err := m.check(ctx, mp, stats); err != nil {
			// Interrupted checks are handed back untouched
			if ctx.Err() != nil {
				m.logger.Printf("%s Check of %s interrupted", progress, mp.CNJNumber)
				m.releaseClaims(claimed[idx:])
				stats.Duration = m.now().Sub(started)
				return stats, ctx.Err()
			}
			if errors.Is(err, store.ErrClaimLost) {
				m.errLogger.Printf("Claim on process %s expired before the check finished; leaving it to the new holder", mp.CNJNumber)
				stats.Lost++
				continue
			}
			m.errLogger.Printf("Failed to check process %s: %v", mp.CNJNumber, err)
			stats.Failed++
			m.recordFailure(ctx, mp, err, stats)
			continue
		}

		stats.Updated++
	}

	stats.Duration = m.now().Sub(started)
	return stats, nil
}

// RunJob runs a batch and reduces it to a JobResult. Per-process failures
// are only counted.
func (m *Monitor) RunJob(ctx context.Context) JobResult {
	stats, err := m.RunBatch(ctx)
	if stats != nil && m.recorder != nil {
		if recErr := m.recorder.RecordRun(context.WithoutCancel(ctx), stats, m.now()); recErr != nil {
			m.errLogger.Printf("Failed to record monitoring run: %v", recErr)
		}
	}

	if err != nil {
		m.errLogger.Printf("Monitoring job failed: %v", err)
		return JobResult{Success: false, Error: jobFailedMessage}
	}

	if stats.Claimed == 0 {
		return JobResult{Success: true, Message: noDueProcessesMessage}
	}

	updated := stats.Updated
	return JobResult{
		Success: true,
		Updated: &updated,
		Failed:  stats.Failed,
		Message: fmt.Sprintf(updatedMessageFormat, stats.Updated),
	}
}

// check fetches, persists and reschedules one monitored process
func (m *Monitor) check(ctx context.Context, mp model.MonitoredProcess, stats *MonitorStats) error {
	cp, err := m.client.FetchProcess(ctx, mp.CNJNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}

	_, saveStats, err := m.processes.Save(ctx, cp)
	if err != nil {
		return err
	}
	stats.NewMovements += saveStats.Inserted

	checkedAt := m.now()
	nextCheckAt := checkedAt.Add(mp.Frequency.Interval())
	if err := m.monitors.RecordSuccess(ctx, mp.ID, mp.ClaimToken.String, checkedAt, nextCheckAt); err != nil {
		return fmt.Errorf("failed to reschedule: %w", err)
	}

	return nil
}

// recordFailure counts the failure and pushes the next attempt out by the
// backoff. next_check_at itself stays where it was.
func (m *Monitor) recordFailure(ctx context.Context, mp model.MonitoredProcess, cause error, stats *MonitorStats) {
	failedAt := m.now()
	retryAfter := failedAt.Add(m.retryDelay(mp.FailureCount+1, mp.Frequency))

	reason := cause.Error()
	if len(reason) > maxErrorLength {
		reason = reason[:maxErrorLength]
	}

	count, status, err := m.monitors.RecordFailure(context.WithoutCancel(ctx), mp.ID, mp.ClaimToken.String, failedAt, reason, retryAfter, m.opts.MaxConsecutiveFailures)
	if errors.Is(err, store.ErrClaimLost) {
		m.errLogger.Printf("Claim on process %s expired before its failure was recorded", mp.CNJNumber)
		return
	}
	if err != nil {
		m.errLogger.Printf("Failed to record failure for process %s: %v", mp.CNJNumber, err)
		return
	}

	if status == model.StatusFailing {
		stats.DeadLettered++
		m.errLogger.Printf("Process %s moved to %s after %d consecutive failures", mp.CNJNumber, status, count)
	}
}

// retryDelay doubles the failure backoff per consecutive failure, capped at the polling interval
func (m *Monitor) retryDelay(failures int, freq model.Frequency) time.Duration {
	delay := m.opts.FailureBackoff
	if delay <= 0 {
		return 0
	}

	limit := freq.Interval()
	for i := 1; i < failures && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}

	return delay
}

// releaseClaims hands unprocessed claims back after cancellation
func (m *Monitor) releaseClaims(pending []model.MonitoredProcess) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, mp := range pending {
		if err := m.monitors.ReleaseClaim(ctx, mp.ID, mp.ClaimToken.String); err != nil {
			m.errLogger.Printf("Failed to release claim on process %s: %v", mp.CNJNumber, err)
		}
	}
}

// PrintSummary prints the batch statistics
func (m *Monitor) PrintSummary(stats *MonitorStats) {
	if stats == nil {
		return
	}

	failed := fmt.Sprint(stats.Failed)
	if stats.Failed > 0 {
		failed = color.New(color.FgRed).Sprint(stats.Failed)
	}
	updated := color.New(color.FgGreen).Sprint(stats.Updated)

	m.logger.Println("")
	m.logger.Println("=== Monitoring Summary ===")
	m.logger.Printf("Claimed:         %d", stats.Claimed)
	m.logger.Printf("Updated:         %s", updated)
	m.logger.Printf("Failed:          %s", failed)
	if stats.DeadLettered > 0 {
		m.logger.Printf("Moved to failing: %s", color.New(color.FgYellow).Sprint(stats.DeadLettered))
	}
	if stats.Lost > 0 {
		m.logger.Printf("Claims lost:     %s", color.New(color.FgYellow).Sprint(stats.Lost))
	}
	m.logger.Printf("New movements:   %d", stats.NewMovements)
	m.logger.Printf("Duration:        %s", stats.Duration.Round(time.Millisecond))

	if stats.Claimed > 0 {
		successRate := float64(stats.Updated) / float64(stats.Claimed) * 100
		m.logger.Printf("Success rate:    %.1f%%", successRate)
	}
}

// IsCancelled reports whether err stems from context cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
