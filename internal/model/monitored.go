package model

import (
	"database/sql"
	"fmt"
	"time"
)

// Frequency is the polling cadence configured for a monitored process
type Frequency string

const (
	FrequencyHourly    Frequency = "1h"
	FrequencySixHourly Frequency = "6h"
	FrequencyDaily     Frequency = "daily"
)

// DefaultFrequency is applied when a registration omits the frequency
const DefaultFrequency = FrequencyDaily

// ParseFrequency validates a frequency string; empty maps to the default
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case "":
		return DefaultFrequency, nil
	case FrequencyHourly, FrequencySixHourly, FrequencyDaily:
		return Frequency(s), nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// Hours returns the polling interval in hours
func (f Frequency) Hours() int {
	switch f {
	case FrequencyHourly:
		return 1
	case FrequencySixHourly:
		return 6
	default:
		return 24
	}
}

// Interval returns the polling interval
func (f Frequency) Interval() time.Duration {
	return time.Duration(f.Hours()) * time.Hour
}

// MonitorStatus is the lifecycle state of a monitored process
type MonitorStatus string

const (
	StatusActive    MonitorStatus = "active"
	StatusSuspended MonitorStatus = "suspended"
	StatusArchived  MonitorStatus = "archived"
	// StatusFailing is the dead-letter state entered after too many consecutive failed checks
	StatusFailing MonitorStatus = "failing"
)

// ParseStatus validates a status string
func ParseStatus(s string) (MonitorStatus, error) {
	switch MonitorStatus(s) {
	case StatusActive, StatusSuspended, StatusArchived, StatusFailing:
		return MonitorStatus(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// CanTransition reports whether a user may move a monitored process from one status to another
func CanTransition(from, to MonitorStatus) bool {
	switch from {
	case StatusActive:
		return to == StatusSuspended || to == StatusArchived
	case StatusSuspended:
		return to == StatusActive || to == StatusArchived
	case StatusFailing:
		return to == StatusActive || to == StatusArchived
	default:
		return false
	}
}

// MonitoredProcess represents a user's subscription to periodic checks of a process
type MonitoredProcess struct {
	ID            int64
	UserID        string
	ProcessID     int64
	CNJNumber     string
	Nickname      string
	Frequency     Frequency
	Status        MonitorStatus
	LastCheckAt   sql.NullTime
	NextCheckAt   time.Time
	FailureCount  int
	LastFailureAt sql.NullTime
	LastError     sql.NullString
	RetryAfter    sql.NullTime
	ClaimToken    sql.NullString
	ClaimedUntil  sql.NullTime
	CreatedAt     time.Time
}

// IsDue reports whether the process should be checked at now
func (m *MonitoredProcess) IsDue(now time.Time) bool {
	return m.Status == StatusActive && !m.NextCheckAt.After(now)
}
