package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/store"
)

func TestAddMonitoredProcess(t *testing.T) {
	env := newTestEnv(t, MonitorOptions{})
	ctx := context.Background()

	number := "12345678920238260100"
	env.client.processes[number] = courtProcess(number, "2024-01-10T10:00:00.000Z", "2024-02-01T08:00:00.000Z")

	result := env.registration.Add(ctx, testUser, "1234567-89.2023.8.26.0100", "Ação do vizinho", "")
	if !result.Success {
		t.Fatalf("Add failed: %s", result.Error)
	}
	if len(env.client.fetched) != 1 || env.client.fetched[0] != number {
		t.Fatalf("expected one fetch of %s, got %v", number, env.client.fetched)
	}

	m, err := env.monitorStore.GetForUser(ctx, testUser, result.MonitoredID)
	if err != nil || m == nil {
		t.Fatalf("GetForUser: %+v, %v", m, err)
	}
	if m.Frequency != model.FrequencyDaily || m.Status != model.StatusActive {
		t.Fatalf("unexpected subscription: %+v", m)
	}
	if !m.LastCheckAt.Time.Equal(fixedNow) || !m.NextCheckAt.Equal(fixedNow.Add(24*time.Hour)) {
		t.Fatalf("unexpected schedule: last=%v next=%v", m.LastCheckAt.Time, m.NextCheckAt)
	}
	if m.Nickname != "Ação do vizinho" {
		t.Fatalf("unexpected nickname: %q", m.Nickname)
	}

	p, err := env.processStore.GetByCNJ(ctx, number)
	if err != nil || p == nil {
		t.Fatalf("process not stored: %v", err)
	}
	count, err := env.processStore.CountMovements(ctx, p.ID)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 stored movements, got %d (%v)", count, err)
	}
}

func TestAddMonitoredProcessErrors(t *testing.T) {
	notFound := "00000000000000000001"
	upstream := "00000000000000000002"
	unresolvable := "00000000000000000003"

	tests := []struct {
		name      string
		number    string
		frequency string
		want      string
	}{
		{"short number", "123456789", "", MsgInvalidNumber},
		{"unknown frequency", "12345678920238260100", "weekly", MsgInvalidFrequency},
		{"not in datajud", notFound, "", MsgProcessNotFound},
		{"upstream failure", upstream, "", MsgUpstreamFailure},
		{"unresolvable court", unresolvable, "", MsgUnresolvableCourt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, MonitorOptions{})
			env.client.errs[upstream] = &UpstreamError{StatusCode: 503, Err: errors.New("unavailable")}
			env.client.errs[unresolvable] = fmt.Errorf("%w: unknown segment/court 0.00", ErrUnresolvableCourt)

			result := env.registration.Add(context.Background(), testUser, tt.number, "", tt.frequency)
			if result.Success {
				t.Fatal("expected failure")
			}
			if result.Error != tt.want {
				t.Fatalf("error = %q, want %q", result.Error, tt.want)
			}
		})
	}
}

func TestAddMonitoredProcessTwice(t *testing.T) {
	env := newTestEnv(t, MonitorOptions{})

	env.register(t, "12345678920238260100", model.FrequencyDaily)

	result := env.registration.Add(context.Background(), testUser, "12345678920238260100", "", "6h")
	if result.Success || result.Error != MsgAlreadyMonitored {
		t.Fatalf("expected duplicate rejection, got %+v", result)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	env := newTestEnv(t, MonitorOptions{})
	ctx := context.Background()

	id := env.register(t, "12345678920238260100", model.FrequencyDaily)

	if err := setStatus(ctx, env, testUser, id, model.StatusSuspended); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if err := setStatus(ctx, env, testUser, id, model.StatusFailing); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("users may not set failing, got %v", err)
	}
	if err := setStatus(ctx, env, testUser, id, model.StatusArchived); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if err := setStatus(ctx, env, testUser, id, model.StatusActive); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("archived is terminal, got %v", err)
	}

	other := "0b9e4d2c-8a1f-4e3b-a6c7-5d2f9e1b3c84"
	if err := setStatus(ctx, env, other, id, model.StatusActive); !errors.Is(err, store.ErrMonitoredNotFound) {
		t.Fatalf("expected ErrMonitoredNotFound for another user, got %v", err)
	}
}

func TestUpdateFrequencyReschedulesFromLastCheck(t *testing.T) {
	env := newTestEnv(t, MonitorOptions{})
	ctx := context.Background()

	id := env.register(t, "12345678920238260100", model.FrequencyDaily)

	if err := setFrequency(ctx, env, testUser, id, "1h"); err != nil {
		t.Fatalf("frequency change failed: %v", err)
	}

	m, err := env.monitorStore.GetForUser(ctx, testUser, id)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if m.Frequency != model.FrequencyHourly || !m.NextCheckAt.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("unexpected schedule after change: %+v", m)
	}

	if err := setFrequency(ctx, env, testUser, id, "2h"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestUpdateValidatesBeforeWriting(t *testing.T) {
	env := newTestEnv(t, MonitorOptions{})
	ctx := context.Background()

	id := env.register(t, "12345678920238260100", model.FrequencyDaily)

	hourly := "1h"
	failing := model.StatusFailing
	_, err := env.registration.Update(ctx, testUser, id, MonitoredUpdate{Status: &failing, Frequency: &hourly})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	m, err := env.monitorStore.GetForUser(ctx, testUser, id)
	if err != nil {
		t.Fatalf("GetForUser failed: %v", err)
	}
	if m.Frequency != model.FrequencyDaily || m.Status != model.StatusActive {
		t.Fatalf("rejected update must not change anything, got %s/%s", m.Frequency, m.Status)
	}

	suspended := model.StatusSuspended
	updated, err := env.registration.Update(ctx, testUser, id, MonitoredUpdate{Status: &suspended, Frequency: &hourly})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Frequency != model.FrequencyHourly || updated.Status != model.StatusSuspended {
		t.Fatalf("expected both changes applied, got %s/%s", updated.Frequency, updated.Status)
	}
}

func setStatus(ctx context.Context, env *testEnv, userID string, id int64, status model.MonitorStatus) error {
	_, err := env.registration.Update(ctx, userID, id, MonitoredUpdate{Status: &status})
	return err
}

func setFrequency(ctx context.Context, env *testEnv, userID string, id int64, frequency string) error {
	_, err := env.registration.Update(ctx, userID, id, MonitoredUpdate{Frequency: &frequency})
	return err
}

func TestListAndRemove(t *testing.T) {
	env := newTestEnv(t, MonitorOptions{})
	ctx := context.Background()

	first := env.register(t, "00000000000000000001", model.FrequencyDaily)
	env.register(t, "00000000000000000002", model.FrequencyHourly)

	if err := env.registration.Remove(ctx, testUser, first); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	list, err := env.registration.List(ctx, testUser, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].CNJNumber != "00000000000000000002" {
		t.Fatalf("unexpected list: %+v", list)
	}

	// The process record survives the subscription
	p, err := env.processStore.GetByCNJ(ctx, "00000000000000000001")
	if err != nil || p == nil {
		t.Fatalf("process should be kept after removal: %v", err)
	}
}
