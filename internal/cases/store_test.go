package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/internal/progress"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

type recordingToaster struct {
	mu    sync.Mutex
	descs []string
}

func (r *recordingToaster) Toast(_ context.Context, t notify.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descs = append(r.descs, t.Description)
}

func (r *recordingToaster) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.descs...)
}

func newTestStore(t *testing.T, handler http.HandlerFunc) (*Store, *recordingToaster) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	logger := logging.NewWithWriter(io.Discard, "debug")
	client := apiclient.New(apiclient.Options{BaseURL: ts.URL, Logger: logger})
	toaster := &recordingToaster{}
	store := NewStore(client, Options{
		Toaster: toaster,
		Metrics: metrics.NewAPIMetrics(prometheus.NewRegistry()),
		Logger:  logger,
	})
	return store, toaster
}

const caseJSON = `{"_id":"c-1","patientId":"p-1","status":%q,"reductionAmount":%v,
"caseSteps":[{"_id":"s1","status":%q},{"_id":"s2","status":%q},{"_id":"s3","status":"Not Started"},{"_id":"s4","status":"Not Started"}],
"appointments":[{"providerName":"Dr A","procedureDate":"2025-01-02","currentBalance":1000},{"providerName":"Dr B","procedureDate":"2025-01-03","currentBalance":2000}]}`

func fmtCase(status billing.CaseStatus, reduction float64, s1, s2 billing.StepStatus) string {
	return fmt.Sprintf(caseJSON, status, reduction, s1, s2)
}

func sampleCase(status billing.CaseStatus, s1, s2 billing.StepStatus) billing.Case {
	return billing.Case{
		ID:     "c-1",
		Status: status,
		CaseSteps: []billing.CaseStep{
			{ID: "s1", Index: 1, Status: s1},
			{ID: "s2", Index: 2, Status: s2},
			{ID: "s3", Index: 3, Status: billing.StepNotStarted},
			{ID: "s4", Index: 4, Status: billing.StepNotStarted},
		},
	}
}

func TestFetchListSendsOneIndexedPage(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cases", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "p-1", r.URL.Query().Get("patientId"))
		_, _ = w.Write([]byte(`{"status":true,"data":{"list":[],"currentPage":3,"totalPages":4,"totalCases":31}}`))
	})

	require.NoError(t, store.FetchList(context.Background(), "p-1", 2, 0))
	snap := store.Snapshot()
	assert.Equal(t, 3, snap.List.CurrentPage)
	assert.Equal(t, 31, snap.List.Total)
	assert.False(t, snap.IsLoading)
}

func TestFetchCaseFailureToastsAndKeepsLoadingClear(t *testing.T) {
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":false,"message":"Case not found"}`))
	})

	err := store.FetchCase(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apiclient.ErrRequestFailed)
	assert.Equal(t, []string{"Case not found"}, toaster.all())
	_, ok := store.Current()
	assert.False(t, ok)
	assert.False(t, store.Snapshot().IsLoading)
}

func TestFetchCaseRejectsBrokenStepCount(t *testing.T) {
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"_id":"c-1","status":"Active","caseSteps":[{"status":"Completed"}]}}`))
	})

	err := store.FetchCase(context.Background(), "c-1")
	assert.ErrorIs(t, err, billing.ErrInvalidCase)
	assert.Equal(t, []string{msgFetchFailed}, toaster.all())
}

func TestFetchDashboardCounts(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cases/patientSummary":
			_, _ = w.Write([]byte(`{"status":true,"data":{"totalPatients":12,"activeCases":5,"completed":3}}`))
		case "/cases/caseStatus":
			_, _ = w.Write([]byte(`{"status":true,"data":{"pendingReductions":2,"activeCases":5,"completedCases":3}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	require.NoError(t, store.FetchSummary(ctx))
	require.NoError(t, store.FetchStatus(ctx))
	snap := store.Snapshot()
	assert.Equal(t, billing.Summary{TotalPatients: 12, ActiveCases: 5, Completed: 3}, snap.Summary)
	assert.Equal(t, 2, snap.Status.PendingReductions)
}

func TestUpdateStepGatedNeverReachesServer(t *testing.T) {
	var calls atomic.Int32
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	c := sampleCase(billing.CaseActive, billing.StepCompleted, billing.StepPending)

	err := store.UpdateStep(context.Background(), c, progress.MarkRequest{Step: 3})
	var gate *progress.GateError
	require.True(t, errors.As(err, &gate))
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, []string{"You must complete Step 2 before proceeding to Step 3."}, toaster.all())
}

func TestUpdateStepReplacesCase(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/cases/c-1/steps/s2", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 500.0, body["reductionAmount"])
		_, _ = w.Write([]byte(`{"status":true,"data":` + fmtCase(billing.CasePendingReductions, 500, billing.StepCompleted, billing.StepCompleted) + `}`))
	})
	c := sampleCase(billing.CaseActive, billing.StepCompleted, billing.StepPending)

	require.NoError(t, store.UpdateStep(context.Background(), c, progress.MarkRequest{Step: 2, ReductionAmount: 500}))

	got, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, billing.CasePendingReductions, got.Status)
	assert.Equal(t, 500.0, got.ReductionAmount)
	assert.Equal(t, 2, progress.CompletedCount(got.CaseSteps))
	assert.False(t, store.Snapshot().IsStepLoading)
}

func TestUpdateStepRejectsNegativeReduction(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "unexpected request")
	})
	c := sampleCase(billing.CaseActive, billing.StepCompleted, billing.StepPending)

	err := store.UpdateStep(context.Background(), c, progress.MarkRequest{Step: 2, ReductionAmount: -5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reduction amount cannot be negative")
}

func TestUpdateStepSendsZeroReduction(t *testing.T) {
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 0.0, body["reductionAmount"])
		_, _ = w.Write([]byte(`{"status":true,"data":` + fmtCase(billing.CasePendingReductions, 0, billing.StepCompleted, billing.StepCompleted) + `}`))
	})
	c := sampleCase(billing.CaseActive, billing.StepCompleted, billing.StepPending)

	require.NoError(t, store.UpdateStep(context.Background(), c, progress.MarkRequest{Step: 2}))
	got, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, 2, progress.CompletedCount(got.CaseSteps))
	assert.Empty(t, toaster.all())
}

func TestTransportFailureToastsFallback(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	baseURL := ts.URL
	ts.Close()
	logger := logging.NewWithWriter(io.Discard, "debug")
	toaster := &recordingToaster{}
	store := NewStore(apiclient.New(apiclient.Options{BaseURL: baseURL, Logger: logger}), Options{Toaster: toaster, Logger: logger})

	require.Error(t, store.FetchCase(context.Background(), "c-1"))
	c := sampleCase(billing.CaseActive, billing.StepCompleted, billing.StepPending)
	require.Error(t, store.UpdateStep(context.Background(), c, progress.MarkRequest{Step: 2, ReductionAmount: 100}))
	assert.Equal(t, []string{msgFetchFailed, msgUpdateFailed}, toaster.all())
}

func TestCancelledFetchIsNotToasted(t *testing.T) {
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":` + fmtCase(billing.CaseActive, 0, billing.StepPending, billing.StepNotStarted) + `}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.FetchCase(ctx, "c-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, toaster.all())
}

func TestLowerStatusInstallsServerCase(t *testing.T) {
	var calls atomic.Int32
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":true,"data":` + fmtCase(billing.CasePendingCheck, 0, billing.StepCompleted, billing.StepCompleted) + `}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":true,"data":` + fmtCase(billing.CaseActive, 0, billing.StepCompleted, billing.StepPending) + `}`))
	})
	ctx := context.Background()

	require.NoError(t, store.FetchCase(ctx, "c-1"))
	require.NoError(t, store.FetchCase(ctx, "c-1"))

	got, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, billing.CaseActive, got.Status)
	assert.Equal(t, billing.StepPending, got.CaseSteps[1].Status)
}

func TestUpdateAppointmentsSendsWholeArray(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cases/c-1/appointments", r.URL.Path)
		var body struct {
			Appointments []billing.Appointment `json:"appointments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Appointments, 2)
		assert.Equal(t, "Dr A", body.Appointments[0].ProviderName)
		_, _ = w.Write([]byte(`{"status":true,"data":` + fmtCase(billing.CaseActive, 0, billing.StepPending, billing.StepNotStarted) + `}`))
	})

	rows := []billing.Appointment{
		{ProviderName: "Dr A", CurrentBalance: 1000},
		{ProviderName: "Dr B", CurrentBalance: 2000},
	}
	require.NoError(t, store.UpdateAppointments(context.Background(), "c-1", rows))
	got, ok := store.Current()
	require.True(t, ok)
	assert.Len(t, got.Appointments, 2)
}

func TestUnauthorizedIsNotToasted(t *testing.T) {
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := store.FetchSummary(context.Background())
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.Empty(t, toaster.all())
}
