package service

import (
	"context"
	"fmt"

	"github.com/clausify/clausify/internal/model"
)

// defaultMovementLimit caps the movements returned with a looked-up process
const defaultMovementLimit = 200

// ProcessView is a stored process with its newest movements
type ProcessView struct {
	Process   *model.JudicialProcess
	Movements []model.JudicialMovement
}

// Lookup serves direct process queries outside of any monitoring subscription
type Lookup struct {
	client    CourtClient
	processes *ProcessService
}

// NewLookup creates a new Lookup
func NewLookup(client CourtClient, processes *ProcessService) *Lookup {
	return &Lookup{client: client, processes: processes}
}

// ByNumber fetches a process from DataJud, stores it and returns the stored view
func (l *Lookup) ByNumber(ctx context.Context, number string) (*ProcessView, error) {
	cp, err := l.client.FetchProcess(ctx, number)
	if err != nil {
		return nil, err
	}

	saved, _, err := l.processes.Save(ctx, cp)
	if err != nil {
		return nil, err
	}

	process, movements, err := l.processes.Get(ctx, saved.CNJNumber, defaultMovementLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load process %s: %w", saved.CNJNumber, err)
	}
	if process == nil {
		process = saved
	}

	return &ProcessView{Process: process, Movements: movements}, nil
}

// Stored returns the stored view of a process, fetching it when absent
func (l *Lookup) Stored(ctx context.Context, number string) (*ProcessView, error) {
	process, movements, err := l.processes.Get(ctx, number, defaultMovementLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load process %s: %w", number, err)
	}
	if process == nil {
		return l.ByNumber(ctx, number)
	}

	return &ProcessView{Process: process, Movements: movements}, nil
}

// ByDocument lists a court's processes involving a taxpayer document; nothing is stored
func (l *Lookup) ByDocument(ctx context.Context, document, courtAlias string) ([]model.CourtProcess, error) {
	return l.client.SearchByDocument(ctx, document, courtAlias)
}
