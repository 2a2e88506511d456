package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/clausify/clausify/internal/model"
)

var (
	// ErrAlreadyMonitored is returned when a user already monitors the process
	ErrAlreadyMonitored = errors.New("process already monitored by user")
	// ErrMonitoredNotFound is returned when a monitored process does not exist for the user
	ErrMonitoredNotFound = errors.New("monitored process not found")
	// ErrClaimLost is returned when a process is no longer held by the given claim token
	ErrClaimLost = errors.New("claim on monitored process lost")
)

// MonitorStore handles database operations for monitored processes
type MonitorStore struct {
	db *sql.DB
}

// NewMonitorStore creates a new MonitorStore
func NewMonitorStore(db *sql.DB) *MonitorStore {
	return &MonitorStore{db: db}
}

var monitoredColumns = []string{
	"m.id", "m.user_id", "m.process_id", "p.cnj_number", "m.nickname", "m.frequency", "m.status",
	"m.last_check_at", "m.next_check_at", "m.failure_count", "m.last_failure_at", "m.last_error",
	"m.retry_after", "m.claim_token", "m.claimed_until", "m.created_at",
}

func selectMonitored() sq.SelectBuilder {
	return psql.
		Select(monitoredColumns...).
		From("monitored_processes m").
		Join("judicial_processes p ON p.id = m.process_id")
}

// Create inserts a monitored process, returning ErrAlreadyMonitored when the
// user already follows the same process
func (s *MonitorStore) Create(ctx context.Context, m *model.MonitoredProcess) error {
	query := `
		INSERT INTO monitored_processes (user_id, process_id, nickname, frequency, status,
		                                 last_check_at, next_check_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, process_id) DO NOTHING
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		m.UserID,
		m.ProcessID,
		m.Nickname,
		string(m.Frequency),
		string(m.Status),
		m.LastCheckAt,
		m.NextCheckAt,
		m.CreatedAt,
	).Scan(&m.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyMonitored
	}
	if err != nil {
		return fmt.Errorf("failed to create monitored process: %w", err)
	}

	return nil
}

// GetForUser retrieves a monitored process owned by the user
func (s *MonitorStore) GetForUser(ctx context.Context, userID string, id int64) (*model.MonitoredProcess, error) {
	return s.getOne(ctx, sq.Eq{"m.id": id, "m.user_id": userID})
}

func (s *MonitorStore) getOne(ctx context.Context, where sq.Eq) (*model.MonitoredProcess, error) {
	query, args, err := selectMonitored().Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build monitored query: %w", err)
	}

	m, err := scanMonitored(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitored process: %w", err)
	}

	return m, nil
}

// ListByUser retrieves a user's monitored processes, optionally filtered by status
func (s *MonitorStore) ListByUser(ctx context.Context, userID string, status model.MonitorStatus) ([]model.MonitoredProcess, error) {
	builder := selectMonitored().
		Where(sq.Eq{"m.user_id": userID}).
		OrderBy("m.created_at DESC", "m.id DESC")
	if status != "" {
		builder = builder.Where(sq.Eq{"m.status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build monitored list query: %w", err)
	}

	return s.query(ctx, query, args...)
}

// Delete removes a user's monitored process; the process record itself is kept
func (s *MonitorStore) Delete(ctx context.Context, userID string, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM monitored_processes WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete monitored process %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// UpdateStatus changes the status of a user's monitored process. Resetting
// failures clears the failure counter, backoff and any stale claim.
func (s *MonitorStore) UpdateStatus(ctx context.Context, userID string, id int64, status model.MonitorStatus, resetFailures bool) error {
	query := `UPDATE monitored_processes SET status = $1 WHERE id = $2 AND user_id = $3`
	if resetFailures {
		query = `
			UPDATE monitored_processes
			SET status = $1, failure_count = 0, last_error = NULL, retry_after = NULL,
			    claim_token = NULL, claimed_until = NULL
			WHERE id = $2 AND user_id = $3
		`
	}

	result, err := s.db.ExecContext(ctx, query, string(status), id, userID)
	if err != nil {
		return fmt.Errorf("failed to update status of monitored process %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// UpdateFrequency changes the polling frequency and the next scheduled check
func (s *MonitorStore) UpdateFrequency(ctx context.Context, userID string, id int64, freq model.Frequency, nextCheckAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE monitored_processes SET frequency = $1, next_check_at = $2
		WHERE id = $3 AND user_id = $4
	`, string(freq), nextCheckAt, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update frequency of monitored process %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// ClaimDue marks up to limit due, unclaimed, non-backed-off processes with a
// fresh claim token and returns them ordered by next check. The outer WHERE
// repeats the claimable predicate so that concurrent claimers skip rows
// another transaction has just claimed.
func (s *MonitorStore) ClaimDue(ctx context.Context, now time.Time, limit int, ttl time.Duration) ([]model.MonitoredProcess, error) {
	token := uuid.NewString()

	claimQuery := `
		UPDATE monitored_processes
		SET claim_token = $1, claimed_until = $2
		WHERE id IN (
			SELECT id FROM monitored_processes
			WHERE status = 'active'
			  AND next_check_at <= $3
			  AND (claimed_until IS NULL OR claimed_until <= $3)
			  AND (retry_after IS NULL OR retry_after <= $3)
			ORDER BY next_check_at, id
			LIMIT $4
		)
		AND status = 'active'
		AND next_check_at <= $3
		AND (claimed_until IS NULL OR claimed_until <= $3)
		AND (retry_after IS NULL OR retry_after <= $3)
	`

	if _, err := s.db.ExecContext(ctx, claimQuery, token, now.Add(ttl), now, limit); err != nil {
		return nil, fmt.Errorf("failed to claim due processes: %w", err)
	}

	query, args, err := selectMonitored().
		Where(sq.Eq{"m.claim_token": token}).
		OrderBy("m.next_check_at", "m.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build claimed query: %w", err)
	}

	return s.query(ctx, query, args...)
}

// RecordSuccess reschedules a process after a successful check and clears
// failure tracking and the claim. Only the current claim holder may do so.
func (s *MonitorStore) RecordSuccess(ctx context.Context, id int64, claimToken string, checkedAt, nextCheckAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE monitored_processes
		SET last_check_at = $1, next_check_at = $2, failure_count = 0, last_error = NULL,
		    retry_after = NULL, claim_token = NULL, claimed_until = NULL
		WHERE id = $3 AND claim_token = $4
	`, checkedAt, nextCheckAt, id, claimToken)
	if err != nil {
		return fmt.Errorf("failed to reschedule monitored process %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrClaimLost, id)
	}
	return nil
}

// RecordFailure counts a failed check without touching the schedule. Once
// failures reach maxFailures (when positive) the process moves to the failing
// state. It returns the updated failure count and status, or ErrClaimLost when
// claimToken no longer holds the process.
func (s *MonitorStore) RecordFailure(ctx context.Context, id int64, claimToken string, failedAt time.Time, reason string, retryAfter time.Time, maxFailures int) (int, model.MonitorStatus, error) {
	query := `
		UPDATE monitored_processes
		SET failure_count = failure_count + 1,
		    last_failure_at = $1,
		    last_error = $2,
		    retry_after = $3,
		    status = CASE WHEN $4 > 0 AND failure_count + 1 >= $4 THEN 'failing' ELSE status END,
		    claim_token = NULL,
		    claimed_until = NULL
		WHERE id = $5 AND claim_token = $6
		RETURNING failure_count, status
	`

	var count int
	var status string
	err := s.db.QueryRowContext(ctx, query, failedAt, reason, retryAfter, maxFailures, id, claimToken).Scan(&count, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: %d", ErrClaimLost, id)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to record failure for monitored process %d: %w", id, err)
	}

	return count, model.MonitorStatus(status), nil
}

// ReleaseClaim drops the claim on a process that was claimed but not
// processed. A claim already taken over by another run is left alone.
func (s *MonitorStore) ReleaseClaim(ctx context.Context, id int64, claimToken string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE monitored_processes SET claim_token = NULL, claimed_until = NULL WHERE id = $1 AND claim_token = $2",
		id, claimToken)
	if err != nil {
		return fmt.Errorf("failed to release claim on monitored process %d: %w", id, err)
	}
	return nil
}

func (s *MonitorStore) query(ctx context.Context, query string, args ...any) ([]model.MonitoredProcess, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored processes: %w", err)
	}
	defer rows.Close()

	var result []model.MonitoredProcess
	for rows.Next() {
		m, err := scanMonitored(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitored process: %w", err)
		}
		result = append(result, *m)
	}

	return result, rows.Err()
}

func scanMonitored(row rowScanner) (*model.MonitoredProcess, error) {
	var m model.MonitoredProcess
	var frequency, status string
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.ProcessID,
		&m.CNJNumber,
		&m.Nickname,
		&frequency,
		&status,
		&m.LastCheckAt,
		&m.NextCheckAt,
		&m.FailureCount,
		&m.LastFailureAt,
		&m.LastError,
		&m.RetryAfter,
		&m.ClaimToken,
		&m.ClaimedUntil,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Frequency = model.Frequency(frequency)
	m.Status = model.MonitorStatus(status)
	return &m, nil
}

func requireAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrMonitoredNotFound, id)
	}
	return nil
}
