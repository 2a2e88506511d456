package model

import (
	"database/sql"
	"time"
)

// JudicialProcess represents the stored state of a court case, keyed by CNJ number
type JudicialProcess struct {
	ID               int64
	CNJNumber        string
	CourtAlias       string
	ClassName        string
	Subject          string
	JudgingBody      string
	FilingDate       sql.NullTime
	LastMovementDate sql.NullTime
	LastMovementHash sql.NullString
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JudicialMovement represents a single docket entry belonging to a process
type JudicialMovement struct {
	ID           int64
	ProcessID    int64
	Hash         string
	MovementDate time.Time
	Description  string
	Code         int
	Details      string
	CreatedAt    time.Time
}

// CourtProcess represents a process payload as returned by the DataJud API
type CourtProcess struct {
	Number      string
	CourtAlias  string
	Tribunal    string
	ClassCode   int
	ClassName   string
	Subject     string
	JudgingBody string
	Grade       string
	FilingDate  time.Time
	UpdatedAt   time.Time
	Movements   []CourtMovement
}

// CourtMovement represents a movement as returned by the DataJud API.
// DateRaw is the upstream string and participates in the movement hash;
// Date is its parsed form, zero when unparseable.
type CourtMovement struct {
	Code        int
	Description string
	DateRaw     string
	Date        time.Time
	Details     string
}

// LatestMovement returns the most recent movement by date. Ties keep the
// first movement in payload order.
func (p *CourtProcess) LatestMovement() (CourtMovement, bool) {
	if len(p.Movements) == 0 {
		return CourtMovement{}, false
	}

	latest := p.Movements[0]
	for _, m := range p.Movements[1:] {
		if m.Date.After(latest.Date) {
			latest = m
		}
	}

	return latest, true
}
