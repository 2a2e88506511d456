package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/clausify/clausify/internal/model"
)

// CourtClient is the court data gateway used by the services
type CourtClient interface {
	FetchProcess(ctx context.Context, number string) (*model.CourtProcess, error)
	SearchByDocument(ctx context.Context, document, courtAlias string) ([]model.CourtProcess, error)
}

// ProcessRepository persists processes and their movements
type ProcessRepository interface {
	GetByCNJ(ctx context.Context, cnj string) (*model.JudicialProcess, error)
	UpsertProcess(ctx context.Context, p *model.JudicialProcess) error
	InsertMovement(ctx context.Context, m *model.JudicialMovement) (bool, error)
	RefreshLastMovement(ctx context.Context, processID int64) (bool, error)
	ListMovements(ctx context.Context, processID int64, limit int) ([]model.JudicialMovement, error)
}

// SaveStats tracks movement ingestion for one saved payload
type SaveStats struct {
	Inserted   int
	Duplicates int
	Failed     int
}

// ProcessService reconciles fetched court payloads with storage
type ProcessService struct {
	store     ProcessRepository
	now       func() time.Time
	logger    *log.Logger
	errLogger *log.Logger
}

// NewProcessService creates a new ProcessService
func NewProcessService(store ProcessRepository) *ProcessService {
	return &ProcessService{
		store:     store,
		now:       utcNow,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
		errLogger: log.New(os.Stderr, "ERROR: ", log.LstdFlags),
	}
}

// Save upserts the process and inserts the movements not yet stored for it.
// A failed process upsert aborts; a failed movement insert is logged and skipped.
func (s *ProcessService) Save(ctx context.Context, cp *model.CourtProcess) (*model.JudicialProcess, *SaveStats, error) {
	now := s.now()

	process := &model.JudicialProcess{
		CNJNumber:   NormalizeCNJ(cp.Number),
		CourtAlias:  cp.CourtAlias,
		ClassName:   cp.ClassName,
		Subject:     cp.Subject,
		JudgingBody: cp.JudgingBody,
		UpdatedAt:   now,
	}
	if !cp.FilingDate.IsZero() {
		process.FilingDate = sql.NullTime{Time: cp.FilingDate, Valid: true}
	}

	// Last-movement fields follow the newest movement of this payload
	if latest, ok := cp.LatestMovement(); ok {
		process.LastMovementDate = sql.NullTime{Time: latest.Date, Valid: true}
		process.LastMovementHash = sql.NullString{
			String: MovementHash(latest.DateRaw, latest.Description, latest.Details),
			Valid:  true,
		}
	}

	if err := s.store.UpsertProcess(ctx, process); err != nil {
		return nil, nil, fmt.Errorf("failed to save process: %w", err)
	}

	stats := &SaveStats{}
	for _, m := range cp.Movements {
		movement := &model.JudicialMovement{
			ProcessID:    process.ID,
			Hash:         MovementHash(m.DateRaw, m.Description, m.Details),
			MovementDate: m.Date,
			Description:  m.Description,
			Code:         m.Code,
			Details:      m.Details,
			CreatedAt:    now,
		}

		inserted, err := s.store.InsertMovement(ctx, movement)
		if err != nil {
			s.errLogger.Printf("Failed to insert movement for process %s: %v", process.CNJNumber, err)
			stats.Failed++
			continue
		}

		if inserted {
			stats.Inserted++
		} else {
			stats.Duplicates++
		}
	}

	// An older payload must not roll the process back past movements already stored
	changed, err := s.store.RefreshLastMovement(ctx, process.ID)
	if err != nil {
		s.errLogger.Printf("Failed to refresh last movement for process %s: %v", process.CNJNumber, err)
	} else if changed {
		if stored, err := s.store.GetByCNJ(ctx, process.CNJNumber); err == nil && stored != nil {
			process = stored
		}
	}

	if stats.Inserted > 0 {
		s.logger.Printf("  Process %s: %d new movement(s)", process.CNJNumber, stats.Inserted)
	}

	return process, stats, nil
}

// Get retrieves a stored process and its newest movements; nil when not stored
func (s *ProcessService) Get(ctx context.Context, cnj string, limit int) (*model.JudicialProcess, []model.JudicialMovement, error) {
	process, err := s.store.GetByCNJ(ctx, NormalizeCNJ(cnj))
	if err != nil {
		return nil, nil, err
	}
	if process == nil {
		return nil, nil, nil
	}

	movements, err := s.store.ListMovements(ctx, process.ID, limit)
	if err != nil {
		return nil, nil, err
	}

	return process, movements, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
