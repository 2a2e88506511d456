package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/store"
	"github.com/clausify/clausify/internal/store/storetest"
)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

const testUser = "6f1c2a9e-3b7d-4c1e-9f0a-2d5b8e7c4a10"

// fakeCourtClient serves canned processes and errors keyed by case number
type fakeCourtClient struct {
	processes map[string]*model.CourtProcess
	errs      map[string]error
	fetched   []string
	// onFetch runs at the start of every fetch when set
	onFetch func()
}

func newFakeCourtClient() *fakeCourtClient {
	return &fakeCourtClient{
		processes: make(map[string]*model.CourtProcess),
		errs:      make(map[string]error),
	}
}

func (f *fakeCourtClient) FetchProcess(ctx context.Context, number string) (*model.CourtProcess, error) {
	number = NormalizeCNJ(number)
	f.fetched = append(f.fetched, number)
	if f.onFetch != nil {
		f.onFetch()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if err, ok := f.errs[number]; ok {
		return nil, err
	}
	if p, ok := f.processes[number]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrProcessNotFound
}

func (f *fakeCourtClient) SearchByDocument(ctx context.Context, document, courtAlias string) ([]model.CourtProcess, error) {
	var result []model.CourtProcess
	for _, p := range f.processes {
		if p.CourtAlias == courtAlias {
			result = append(result, *p)
		}
	}
	return result, nil
}

// courtProcess builds a payload with one movement per raw timestamp
func courtProcess(number string, rawDates ...string) *model.CourtProcess {
	cp := &model.CourtProcess{
		Number:      number,
		CourtAlias:  "tjsp",
		ClassName:   "Procedimento Comum Cível",
		Subject:     "Dano Moral",
		JudgingBody: "1ª Vara Cível",
		FilingDate:  time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	for i, raw := range rawDates {
		cp.Movements = append(cp.Movements, model.CourtMovement{
			Code:        100 + i,
			Description: fmt.Sprintf("Movimento %d", i+1),
			DateRaw:     raw,
			Date:        parseDataJudTime(raw),
		})
	}
	return cp
}

// testEnv wires the services over an in-memory database with a fixed clock
type testEnv struct {
	db           *sql.DB
	client       *fakeCourtClient
	processStore *store.ProcessStore
	monitorStore *store.MonitorStore
	processes    *ProcessService
	registration *Registration
	monitor      *Monitor
	metrics      *MetricsService
}

func newTestEnv(t *testing.T, opts MonitorOptions) *testEnv {
	t.Helper()

	db := storetest.NewDB(t)
	client := newFakeCourtClient()
	processStore := store.NewProcessStore(db)
	monitorStore := store.NewMonitorStore(db)
	clock := func() time.Time { return fixedNow }
	quiet := log.New(io.Discard, "", 0)

	processes := NewProcessService(processStore)
	processes.now = clock
	processes.logger, processes.errLogger = quiet, quiet

	metrics := NewMetricsService(db)
	metrics.now = clock

	registration := NewRegistration(client, processes, monitorStore)
	registration.now = clock
	registration.logger, registration.errLogger = quiet, quiet

	monitor := NewMonitor(client, processes, monitorStore, metrics, opts)
	monitor.now = clock
	monitor.logger, monitor.errLogger = quiet, quiet

	return &testEnv{
		db:           db,
		client:       client,
		processStore: processStore,
		monitorStore: monitorStore,
		processes:    processes,
		registration: registration,
		monitor:      monitor,
		metrics:      metrics,
	}
}

// register adds a subscription, failing the test on an unsuccessful result
func (e *testEnv) register(t *testing.T, number string, freq model.Frequency) int64 {
	t.Helper()

	if _, ok := e.client.processes[number]; !ok {
		e.client.processes[number] = courtProcess(number, "2024-01-10T10:00:00.000Z")
	}

	result := e.registration.Add(context.Background(), testUser, number, "", string(freq))
	if !result.Success {
		t.Fatalf("Add(%s) failed: %s", number, result.Error)
	}
	return result.MonitoredID
}

// makeDue moves a subscription's next check into the past
func (e *testEnv) makeDue(t *testing.T, id int64, nextCheckAt time.Time) {
	t.Helper()

	_, err := e.db.Exec("UPDATE monitored_processes SET next_check_at = $1 WHERE id = $2", nextCheckAt, id)
	if err != nil {
		t.Fatalf("failed to reschedule %d: %v", id, err)
	}
}
