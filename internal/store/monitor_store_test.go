package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/store"
	"github.com/clausify/clausify/internal/store/storetest"
)

const (
	userA = "6f1c2a9e-3b7d-4c1e-9f0a-2d5b8e7c4a10"
	userB = "0b9e4d2c-8a1f-4e3b-a6c7-5d2f9e1b3c84"
)

type monitorFixture struct {
	db        *sql.DB
	processes *store.ProcessStore
	monitors  *store.MonitorStore
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	db := storetest.NewDB(t)
	return &monitorFixture{
		db:        db,
		processes: store.NewProcessStore(db),
		monitors:  store.NewMonitorStore(db),
	}
}

// monitor stores a process and an active subscription due at nextCheck
func (f *monitorFixture) monitor(t *testing.T, user, cnj string, freq model.Frequency, nextCheck time.Time) *model.MonitoredProcess {
	t.Helper()
	ctx := context.Background()

	p, err := f.processes.GetByCNJ(ctx, cnj)
	if err != nil {
		t.Fatalf("GetByCNJ failed: %v", err)
	}
	if p == nil {
		p = newProcess(cnj)
		if err := f.processes.UpsertProcess(ctx, p); err != nil {
			t.Fatalf("UpsertProcess failed: %v", err)
		}
	}

	m := &model.MonitoredProcess{
		UserID:      user,
		ProcessID:   p.ID,
		Frequency:   freq,
		Status:      model.StatusActive,
		LastCheckAt: sql.NullTime{Time: nextCheck.Add(-freq.Interval()), Valid: true},
		NextCheckAt: nextCheck,
		CreatedAt:   baseTime,
	}
	if err := f.monitors.Create(ctx, m); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return m
}

func TestCreateRejectsDuplicates(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	first := f.monitor(t, userA, "12345678920238260100", model.FrequencyDaily, baseTime)

	dup := *first
	dup.ID = 0
	if err := f.monitors.Create(ctx, &dup); !errors.Is(err, store.ErrAlreadyMonitored) {
		t.Fatalf("expected ErrAlreadyMonitored, got %v", err)
	}

	// Another user may monitor the same process
	f.monitor(t, userB, "12345678920238260100", model.FrequencyDaily, baseTime)

	got, err := f.monitors.GetForUser(ctx, userA, first.ID)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if got.CNJNumber != "12345678920238260100" || got.Frequency != model.FrequencyDaily {
		t.Fatalf("unexpected monitored process: %+v", got)
	}

	other, err := f.monitors.GetForUser(ctx, userB, first.ID)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if other != nil {
		t.Fatal("user B should not see user A's subscription")
	}
}

func TestClaimDueSelectsOnlyDueActiveRows(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	now := baseTime

	due := f.monitor(t, userA, "00000000000000000001", model.FrequencyHourly, now.Add(-time.Hour))
	f.monitor(t, userA, "00000000000000000002", model.FrequencyHourly, now.Add(time.Hour))
	suspended := f.monitor(t, userA, "00000000000000000003", model.FrequencyHourly, now.Add(-time.Hour))

	if err := f.monitors.UpdateStatus(ctx, userA, suspended.ID, model.StatusSuspended, false); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	claimed, err := f.monitors.ClaimDue(ctx, now, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected only the due active row, got %+v", claimed)
	}
	if !claimed[0].ClaimToken.Valid {
		t.Fatal("claimed row should carry a claim token")
	}
}

func TestClaimDueIsExclusiveUntilExpiry(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	now := baseTime

	for _, cnj := range []string{"00000000000000000001", "00000000000000000002", "00000000000000000003"} {
		f.monitor(t, userA, cnj, model.FrequencyDaily, now.Add(-time.Minute))
	}

	first, err := f.monitors.ClaimDue(ctx, now, 2, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected batch limit of 2, got %d", len(first))
	}

	second, err := f.monitors.ClaimDue(ctx, now, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected only the unclaimed row, got %d", len(second))
	}
	for _, m := range first {
		if m.ID == second[0].ID {
			t.Fatalf("row %d claimed twice", m.ID)
		}
	}

	none, err := f.monitors.ClaimDue(ctx, now.Add(5*time.Minute), 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("claims should hold until expiry, got %d rows", len(none))
	}

	expired, err := f.monitors.ClaimDue(ctx, now.Add(11*time.Minute), 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(expired) != 3 {
		t.Fatalf("expired claims should be reclaimable, got %d rows", len(expired))
	}
}

func TestRecordSuccessReschedules(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	now := baseTime

	m := f.monitor(t, userA, "12345678920238260100", model.FrequencySixHourly, now.Add(-time.Minute))
	claimed, err := f.monitors.ClaimDue(ctx, now, 10, time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue failed: %v (%d rows)", err, len(claimed))
	}

	next := now.Add(6 * time.Hour)
	if err := f.monitors.RecordSuccess(ctx, m.ID, "stale-token", now, next); !errors.Is(err, store.ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost for a stale token, got %v", err)
	}
	if err := f.monitors.RecordSuccess(ctx, m.ID, claimed[0].ClaimToken.String, now, next); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	got, err := f.monitors.GetForUser(ctx, userA, m.ID)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if !got.LastCheckAt.Time.Equal(now) || !got.NextCheckAt.Equal(next) {
		t.Fatalf("unexpected schedule: last=%v next=%v", got.LastCheckAt.Time, got.NextCheckAt)
	}
	if got.ClaimToken.Valid || got.ClaimedUntil.Valid {
		t.Fatal("claim should be cleared")
	}
	if got.IsDue(now.Add(time.Hour)) {
		t.Fatal("rescheduled process should not be due an hour later")
	}
}

func TestRecordFailureBacksOffAndDeadLetters(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	now := baseTime
	nextCheck := now.Add(-time.Minute)

	m := f.monitor(t, userA, "12345678920238260100", model.FrequencyDaily, nextCheck)

	claimed, err := f.monitors.ClaimDue(ctx, now, 10, time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue failed: %v (%d rows)", err, len(claimed))
	}
	if _, _, err := f.monitors.RecordFailure(ctx, m.ID, "stale-token", now, "upstream 500", now.Add(5*time.Minute), 2); !errors.Is(err, store.ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost for a stale token, got %v", err)
	}

	count, status, err := f.monitors.RecordFailure(ctx, m.ID, claimed[0].ClaimToken.String, now, "upstream 500", now.Add(5*time.Minute), 2)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if count != 1 || status != model.StatusActive {
		t.Fatalf("after first failure: count=%d status=%s", count, status)
	}

	got, err := f.monitors.GetForUser(ctx, userA, m.ID)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if !got.NextCheckAt.Equal(nextCheck) {
		t.Fatalf("next check must be unchanged, got %v", got.NextCheckAt)
	}
	if got.LastError.String != "upstream 500" || !got.LastFailureAt.Valid {
		t.Fatalf("failure not recorded: %+v", got)
	}

	backedOff, err := f.monitors.ClaimDue(ctx, now.Add(time.Minute), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(backedOff) != 0 {
		t.Fatal("row should be excluded while backing off")
	}

	retry, err := f.monitors.ClaimDue(ctx, now.Add(6*time.Minute), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(retry) != 1 {
		t.Fatal("row should be claimable once the backoff passes")
	}

	count, status, err = f.monitors.RecordFailure(ctx, m.ID, retry[0].ClaimToken.String, now.Add(6*time.Minute), "upstream 500", now.Add(16*time.Minute), 2)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if count != 2 || status != model.StatusFailing {
		t.Fatalf("after second failure: count=%d status=%s", count, status)
	}

	due, err := f.monitors.ClaimDue(ctx, now.Add(time.Hour), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("failing rows are not due, got %d", len(due))
	}

	if err := f.monitors.UpdateStatus(ctx, userA, m.ID, model.StatusActive, true); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	resumed, err := f.monitors.GetForUser(ctx, userA, m.ID)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if resumed.FailureCount != 0 || resumed.RetryAfter.Valid || resumed.LastError.Valid {
		t.Fatalf("resume should reset failure tracking: %+v", resumed)
	}
}

func TestListDeleteAndOwnership(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	a1 := f.monitor(t, userA, "00000000000000000001", model.FrequencyDaily, baseTime)
	a2 := f.monitor(t, userA, "00000000000000000002", model.FrequencyHourly, baseTime)
	b1 := f.monitor(t, userB, "00000000000000000001", model.FrequencyDaily, baseTime)

	if err := f.monitors.UpdateStatus(ctx, userA, a2.ID, model.StatusSuspended, false); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	all, err := f.monitors.ListByUser(ctx, userA, "")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows for user A, got %d", len(all))
	}

	active, err := f.monitors.ListByUser(ctx, userA, model.StatusActive)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != a1.ID {
		t.Fatalf("unexpected active rows: %+v", active)
	}

	if err := f.monitors.Delete(ctx, userA, b1.ID); !errors.Is(err, store.ErrMonitoredNotFound) {
		t.Fatalf("deleting another user's row: expected ErrMonitoredNotFound, got %v", err)
	}
	if err := f.monitors.Delete(ctx, userA, a1.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	next := baseTime.Add(time.Hour)
	if err := f.monitors.UpdateFrequency(ctx, userB, b1.ID, model.FrequencyHourly, next); err != nil {
		t.Fatalf("UpdateFrequency failed: %v", err)
	}
	got, err := f.monitors.GetForUser(ctx, userB, b1.ID)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if got.Frequency != model.FrequencyHourly || !got.NextCheckAt.Equal(next) {
		t.Fatalf("frequency not updated: %+v", got)
	}

	suspended, err := f.monitors.ListByUser(ctx, userA, model.StatusSuspended)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(suspended) != 1 || suspended[0].ID != a2.ID {
		t.Fatalf("unexpected suspended rows: %+v", suspended)
	}
}

func TestReleaseClaimRequiresToken(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	now := baseTime

	m := f.monitor(t, userA, "12345678920238260100", model.FrequencyDaily, now.Add(-time.Minute))
	claimed, err := f.monitors.ClaimDue(ctx, now, 10, 10*time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue failed: %v (%d rows)", err, len(claimed))
	}

	if err := f.monitors.ReleaseClaim(ctx, m.ID, "stale-token"); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}
	held, err := f.monitors.GetForUser(ctx, userA, m.ID)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if held.ClaimToken.String != claimed[0].ClaimToken.String {
		t.Fatal("a stale token must not release the current claim")
	}

	if err := f.monitors.ReleaseClaim(ctx, m.ID, claimed[0].ClaimToken.String); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}
	again, err := f.monitors.ClaimDue(ctx, now, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("released row should be claimable at once, got %d rows", len(again))
	}
}
