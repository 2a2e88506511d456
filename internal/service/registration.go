package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/store"
)

// Registration messages shown to users
const (
	MsgInvalidNumber     = "Número de processo inválido. Informe os 20 dígitos do número CNJ."
	MsgInvalidFrequency  = "Frequência inválida. Use 1h, 6h ou daily."
	MsgProcessNotFound   = "Processo não encontrado no DataJud. Verifique o número."
	MsgUpstreamFailure   = "Não foi possível consultar o DataJud. Tente novamente mais tarde."
	MsgUnresolvableCourt = "Tribunal não identificado para este número de processo."
	MsgSaveFailed        = "Erro ao salvar dados do processo."
	MsgAlreadyMonitored  = "Este processo já está sendo monitorado."
	MsgStartFailed       = "Erro ao iniciar monitoramento."
)

var (
	// ErrInvalidStatus is returned for a status transition users may not make
	ErrInvalidStatus = errors.New("invalid status transition")
	// ErrInvalidFrequency is returned for an unknown polling frequency
	ErrInvalidFrequency = errors.New("invalid frequency")
)

// SubscriptionRepository stores users' monitored processes
type SubscriptionRepository interface {
	Create(ctx context.Context, m *model.MonitoredProcess) error
	GetForUser(ctx context.Context, userID string, id int64) (*model.MonitoredProcess, error)
	ListByUser(ctx context.Context, userID string, status model.MonitorStatus) ([]model.MonitoredProcess, error)
	Delete(ctx context.Context, userID string, id int64) error
	UpdateStatus(ctx context.Context, userID string, id int64, status model.MonitorStatus, resetFailures bool) error
	UpdateFrequency(ctx context.Context, userID string, id int64, freq model.Frequency, nextCheckAt time.Time) error
}

// Result is the structured outcome of a registration
type Result struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	MonitoredID int64  `json:"id,omitempty"`
}

// Registration manages users' monitored processes
type Registration struct {
	client        CourtClient
	processes     *ProcessService
	subscriptions SubscriptionRepository
	now           func() time.Time
	logger        *log.Logger
	errLogger     *log.Logger
}

// NewRegistration creates a new Registration
func NewRegistration(client CourtClient, processes *ProcessService, subscriptions SubscriptionRepository) *Registration {
	return &Registration{
		client:        client,
		processes:     processes,
		subscriptions: subscriptions,
		now:           utcNow,
		logger:        log.New(os.Stdout, "", log.LstdFlags),
		errLogger:     log.New(os.Stderr, "ERROR: ", log.LstdFlags),
	}
}

// Add starts monitoring a process for a user. It never returns an error;
// failures are reported through Result.Error.
func (r *Registration) Add(ctx context.Context, userID, processNumber, nickname, frequency string) Result {
	number := NormalizeCNJ(processNumber)
	if !IsValidCNJ(number) {
		return Result{Error: MsgInvalidNumber}
	}

	freq, err := model.ParseFrequency(strings.TrimSpace(frequency))
	if err != nil {
		return Result{Error: MsgInvalidFrequency}
	}

	cp, err := r.client.FetchProcess(ctx, number)
	if err != nil {
		r.errLogger.Printf("Failed to fetch process %s: %v", number, err)
		return Result{Error: fetchErrorMessage(err)}
	}

	process, _, err := r.processes.Save(ctx, cp)
	if err != nil {
		r.errLogger.Printf("Failed to save process %s: %v", number, err)
		return Result{Error: MsgSaveFailed}
	}

	now := r.now()
	monitored := &model.MonitoredProcess{
		UserID:      userID,
		ProcessID:   process.ID,
		CNJNumber:   process.CNJNumber,
		Nickname:    strings.TrimSpace(nickname),
		Frequency:   freq,
		Status:      model.StatusActive,
		LastCheckAt: sql.NullTime{Time: now, Valid: true},
		NextCheckAt: now.Add(freq.Interval()),
		CreatedAt:   now,
	}

	if err := r.subscriptions.Create(ctx, monitored); err != nil {
		if errors.Is(err, store.ErrAlreadyMonitored) {
			return Result{Error: MsgAlreadyMonitored}
		}
		r.errLogger.Printf("Failed to start monitoring process %s: %v", number, err)
		return Result{Error: MsgStartFailed}
	}

	r.logger.Printf("User %s started monitoring process %s (%s)", userID, number, freq)
	return Result{Success: true, MonitoredID: monitored.ID}
}

// List returns a user's monitored processes, optionally filtered by status
func (r *Registration) List(ctx context.Context, userID string, status model.MonitorStatus) ([]model.MonitoredProcess, error) {
	return r.subscriptions.ListByUser(ctx, userID, status)
}

// Remove stops monitoring; stored process data is kept
func (r *Registration) Remove(ctx context.Context, userID string, id int64) error {
	return r.subscriptions.Delete(ctx, userID, id)
}

// MonitoredUpdate lists the changes to apply to a monitored process; nil
// fields are left as they are
type MonitoredUpdate struct {
	Status    *model.MonitorStatus
	Frequency *string
}

// Update validates every requested change before writing any of them. A new
// frequency reschedules from the last check; resuming resets failure tracking.
func (r *Registration) Update(ctx context.Context, userID string, id int64, update MonitoredUpdate) (*model.MonitoredProcess, error) {
	var freq model.Frequency
	if update.Frequency != nil {
		parsed, err := model.ParseFrequency(strings.TrimSpace(*update.Frequency))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrequency, err)
		}
		freq = parsed
	}

	current, err := r.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	changeStatus := update.Status != nil && *update.Status != current.Status
	if changeStatus && !model.CanTransition(current.Status, *update.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, current.Status, *update.Status)
	}

	if update.Frequency != nil {
		base := r.now()
		if current.LastCheckAt.Valid {
			base = current.LastCheckAt.Time
		}
		if err := r.subscriptions.UpdateFrequency(ctx, userID, id, freq, base.Add(freq.Interval())); err != nil {
			return nil, err
		}
	}

	if changeStatus {
		status := *update.Status
		if err := r.subscriptions.UpdateStatus(ctx, userID, id, status, status == model.StatusActive); err != nil {
			return nil, err
		}
	}

	return r.owned(ctx, userID, id)
}

func (r *Registration) owned(ctx context.Context, userID string, id int64) (*model.MonitoredProcess, error) {
	current, err := r.subscriptions.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %d", store.ErrMonitoredNotFound, id)
	}
	return current, nil
}

// fetchErrorMessage maps a gateway error to the message shown to users
func fetchErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrProcessNotFound):
		return MsgProcessNotFound
	case errors.Is(err, ErrUnresolvableCourt):
		return MsgUnresolvableCourt
	default:
		// Upstream errors, timeouts and anything unexpected
		return MsgUpstreamFailure
	}
}
