package patients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/listing"
	"github.com/wolfman30/ace-billing/internal/notify"
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

func newTestStore(t *testing.T, handler http.HandlerFunc) (*Store, *recordingToaster) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	logger := logging.NewWithWriter(io.Discard, "debug")
	toaster := &recordingToaster{}
	client := apiclient.New(apiclient.Options{BaseURL: ts.URL, Logger: logger})
	return NewStore(client, Options{Toaster: toaster, Logger: logger}), toaster
}

func TestFetchListEncodesQuery(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "John Smith", r.URL.Query().Get("search"))
		_, _ = w.Write([]byte(`{"status":true,"data":{"list":[{"_id":"p-1","name":"John Smith","providersCount":2}],"currentPage":2,"totalPages":3,"totalPatients":21}}`))
	})

	require.NoError(t, store.FetchList(context.Background(), Query{Page: 2, Search: "  John Smith "}))
	snap := store.Snapshot()
	require.Len(t, snap.List.List, 1)
	assert.Equal(t, "p-1", snap.List.List[0].ID)
	assert.Equal(t, 21, snap.List.Total)
	assert.Equal(t, "John Smith", snap.Query.Search)
	assert.False(t, snap.IsLoading)
}

func TestFetchListOmitsEmptySearch(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["search"]
		assert.False(t, present)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"status":true,"data":{"list":[]}}`))
	})

	require.NoError(t, store.FetchList(context.Background(), Query{}))
}

func TestFetchListFailureKeepsPriorPage(t *testing.T) {
	calls := 0
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"status":true,"data":{"list":[{"id":"p-1","name":"A"}],"totalPatients":1}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":false}`))
	})
	ctx := context.Background()

	require.NoError(t, store.FetchList(ctx, Query{Page: 1}))
	require.Error(t, store.FetchList(ctx, Query{Page: 2}))

	snap := store.Snapshot()
	require.Len(t, snap.List.List, 1)
	assert.Equal(t, "p-1", snap.List.List[0].ID)
	assert.Equal(t, 1, snap.Query.Page)
	assert.Len(t, toaster.descs, 1)
}

func TestFetchDetails(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients/details/p-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"data":{
			"patientDetails":{"_id":"p-1","name":"Jane Roe","dob":"1990-02-03"},
			"caseDetails":[{"_id":"c-1","status":"Active","caseSteps":[{"status":"Completed"},{"status":"Pending"},{},{}]}],
			"appointmentHistory":[{"providerName":"Dr A","currentBalance":1200}]}}`))
	})

	require.NoError(t, store.FetchDetails(context.Background(), "p-1"))
	snap := store.Snapshot()
	require.NotNil(t, snap.Details)
	assert.Equal(t, "Jane Roe", snap.Details.Patient.Name)
	require.Len(t, snap.Details.Cases, 1)
	assert.Equal(t, 3, snap.Details.Cases[0].CaseSteps[2].Index)
	assert.Len(t, snap.Details.Appointments, 1)
	assert.False(t, snap.IsPatientDetailsLoading)
}

func (r *recordingToaster) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.descs...)
}

func TestFetchListCancelledDoesNotToast(t *testing.T) {
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"list":[]}}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.FetchList(ctx, Query{Page: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, toaster.snapshot())
}

func TestTransportFailureToastsGenericMessage(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	baseURL := ts.URL
	ts.Close()

	logger := logging.NewWithWriter(io.Discard, "debug")
	toaster := &recordingToaster{}
	client := apiclient.New(apiclient.Options{BaseURL: baseURL, Logger: logger})
	store := NewStore(client, Options{Toaster: toaster, Logger: logger})

	require.Error(t, store.FetchList(context.Background(), Query{Page: 1}))
	require.Error(t, store.FetchDetails(context.Background(), "p-1"))
	assert.Equal(t, []string{msgListFailed, msgDetailsFailed}, toaster.snapshot())
}

func TestServerMessageIsToasted(t *testing.T) {
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Patient not found"}`))
	})

	require.Error(t, store.FetchDetails(context.Background(), "p-9"))
	assert.Equal(t, []string{"Patient not found"}, toaster.snapshot())
}

func TestSupersededSearchKeepsLatestPageWithoutToast(t *testing.T) {
	release := make(chan struct{})
	slowStarted := make(chan struct{})
	store, toaster := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		search := r.URL.Query().Get("search")
		if search == "slow" {
			close(slowStarted)
			<-release
		}
		_, _ = w.Write([]byte(`{"status":true,"data":{"list":[{"_id":"p-` + search + `","name":"` + search + `"}],"totalPatients":1}}`))
	})

	var mu sync.Mutex
	var applied []string
	fetch := func(ctx context.Context, q listing.Query) (State, error) {
		err := store.FetchList(ctx, Query{Page: q.Page, Search: q.Search})
		return store.Snapshot(), err
	}
	apply := func(q listing.Query, _ State, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		applied = append(applied, q.Search)
	}
	ctrl := listing.New[State](context.Background(), fetch, apply, listing.Options{
		Name:   "patients",
		Delay:  time.Hour,
		Logger: logging.NewWithWriter(io.Discard, "debug"),
	})
	t.Cleanup(ctrl.Close)

	ctrl.SetSearch("slow")
	ctrl.Flush()
	<-slowStarted
	ctrl.SetSearch("fast")
	ctrl.Flush()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		return !store.Snapshot().IsLoading
	}, 2*time.Second, 5*time.Millisecond)

	snap := store.Snapshot()
	require.Len(t, snap.List.List, 1)
	assert.Equal(t, "p-fast", snap.List.List[0].ID)
	assert.Equal(t, "fast", snap.Query.Search)
	assert.Empty(t, toaster.snapshot())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"fast"}, applied)
}
