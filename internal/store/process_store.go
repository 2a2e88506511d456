package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/clausify/clausify/internal/model"
)

// psql builds queries with Postgres-style placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ProcessStore handles database operations for judicial processes and their movements
type ProcessStore struct {
	db *sql.DB
}

// NewProcessStore creates a new ProcessStore
func NewProcessStore(db *sql.DB) *ProcessStore {
	return &ProcessStore{db: db}
}

const processColumns = `id, cnj_number, court_alias, class_name, subject, judging_body,
	       filing_date, last_movement_date, last_movement_hash, created_at, updated_at`

// GetByCNJ retrieves a process by its normalized case number
func (s *ProcessStore) GetByCNJ(ctx context.Context, cnj string) (*model.JudicialProcess, error) {
	query := `SELECT ` + processColumns + `
		FROM judicial_processes
		WHERE cnj_number = $1
	`

	p, err := scanProcess(s.db.QueryRowContext(ctx, query, cnj))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get process %s: %w", cnj, err)
	}

	return p, nil
}

// UpsertProcess inserts or updates a process keyed by case number. Last-movement
// fields are only overwritten when the incoming values are present.
func (s *ProcessStore) UpsertProcess(ctx context.Context, p *model.JudicialProcess) error {
	query := `
		INSERT INTO judicial_processes (cnj_number, court_alias, class_name, subject, judging_body,
		                                filing_date, last_movement_date, last_movement_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cnj_number) DO UPDATE SET
			court_alias = EXCLUDED.court_alias,
			class_name = EXCLUDED.class_name,
			subject = EXCLUDED.subject,
			judging_body = EXCLUDED.judging_body,
			filing_date = EXCLUDED.filing_date,
			last_movement_date = COALESCE(EXCLUDED.last_movement_date, judicial_processes.last_movement_date),
			last_movement_hash = COALESCE(EXCLUDED.last_movement_hash, judicial_processes.last_movement_hash),
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		p.CNJNumber,
		p.CourtAlias,
		p.ClassName,
		p.Subject,
		p.JudgingBody,
		p.FilingDate,
		p.LastMovementDate,
		p.LastMovementHash,
		p.UpdatedAt,
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert process %s: %w", p.CNJNumber, err)
	}

	return nil
}

// InsertMovement stores a movement unless one with the same hash already exists
// for the process. The unique (process_id, hash) constraint makes this atomic.
func (s *ProcessStore) InsertMovement(ctx context.Context, m *model.JudicialMovement) (inserted bool, err error) {
	query := `
		INSERT INTO judicial_movements (process_id, hash, movement_date, description, code, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (process_id, hash) DO NOTHING
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		m.ProcessID,
		m.Hash,
		m.MovementDate,
		m.Description,
		m.Code,
		m.Details,
		m.CreatedAt,
	).Scan(&m.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert movement %s for process %d: %w", m.Hash, m.ProcessID, err)
	}

	return true, nil
}

// RefreshLastMovement points the process's last-movement fields at the newest
// stored movement. It reports whether the process row changed.
func (s *ProcessStore) RefreshLastMovement(ctx context.Context, processID int64) (changed bool, err error) {
	latestQuery := `
		SELECT hash, movement_date FROM judicial_movements
		WHERE process_id = $1
		ORDER BY movement_date DESC, id ASC
		LIMIT 1
	`

	var latest model.JudicialMovement
	err = s.db.QueryRowContext(ctx, latestQuery, processID).Scan(&latest.Hash, &latest.MovementDate)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find latest movement for process %d: %w", processID, err)
	}

	updateQuery := `
		UPDATE judicial_processes
		SET last_movement_date = $1, last_movement_hash = $2
		WHERE id = $3 AND (last_movement_hash IS NULL OR last_movement_hash <> $2)
	`

	result, err := s.db.ExecContext(ctx, updateQuery, latest.MovementDate, latest.Hash, processID)
	if err != nil {
		return false, fmt.Errorf("failed to refresh last movement for process %d: %w", processID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return n > 0, nil
}

// ListMovements retrieves the movements of a process, newest first. A
// non-positive limit returns every movement.
func (s *ProcessStore) ListMovements(ctx context.Context, processID int64, limit int) ([]model.JudicialMovement, error) {
	builder := psql.
		Select("id", "process_id", "hash", "movement_date", "description", "code", "details", "created_at").
		From("judicial_movements").
		Where(sq.Eq{"process_id": processID}).
		OrderBy("movement_date DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build movements query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get movements for process %d: %w", processID, err)
	}
	defer rows.Close()

	var movements []model.JudicialMovement
	for rows.Next() {
		var m model.JudicialMovement
		err := rows.Scan(
			&m.ID,
			&m.ProcessID,
			&m.Hash,
			&m.MovementDate,
			&m.Description,
			&m.Code,
			&m.Details,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}

// CountMovements returns the number of stored movements for a process
func (s *ProcessStore) CountMovements(ctx context.Context, processID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM judicial_movements WHERE process_id = $1", processID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count movements for process %d: %w", processID, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (*model.JudicialProcess, error) {
	var p model.JudicialProcess
	err := row.Scan(
		&p.ID,
		&p.CNJNumber,
		&p.CourtAlias,
		&p.ClassName,
		&p.Subject,
		&p.JudgingBody,
		&p.FilingDate,
		&p.LastMovementDate,
		&p.LastMovementHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
