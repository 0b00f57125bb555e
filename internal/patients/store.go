// Package patients caches the patient list and the open patient's details.
package patients

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// DefaultPageSize is the patient list page size.
const DefaultPageSize = 10

const (
	msgListFailed    = "Failed to fetch patient data"
	msgDetailsFailed = "Failed to fetch patient details"
)

// API is the subset of the billing client used by the patient store.
type API interface {
	Get(ctx context.Context, path string, opts ...apiclient.RequestOption) (apiclient.Result, error)
}

// Query selects one page of the patient list. Page is 1-indexed.
type Query struct {
	Page   int
	Limit  int
	Search string
}

// State is a snapshot of the patient slice.
type State struct {
	List                    billing.Page[billing.Patient] `json:"patientList"`
	Query                   Query                         `json:"-"`
	Details                 *billing.PatientDetails       `json:"patientDetails"`
	IsLoading               bool                          `json:"isLoading"`
	IsPatientDetailsLoading bool                          `json:"isPatientDetailsLoading"`
}

// Options configures a Store.
type Options struct {
	PageSize int
	Toaster  notify.Toaster
	Metrics  *metrics.APIMetrics
	Logger   *logging.Logger
}

// Store is the patient slice.
type Store struct {
	api      API
	pageSize int
	toaster  notify.Toaster
	metrics  *metrics.APIMetrics
	logger   *logging.Logger

	mu      sync.RWMutex
	state   State
	listGen uint64
}

// NewStore creates an empty patient store.
func NewStore(api API, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		api:      api,
		pageSize: pageSize,
		toaster:  opts.Toaster,
		metrics:  opts.Metrics,
		logger:   logger.Component("patients"),
	}
}

// PageSize is the configured list page size.
func (s *Store) PageSize() int { return s.pageSize }

// Snapshot returns a copy of the patient slice.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.List.List = append([]billing.Patient(nil), s.state.List.List...)
	if s.state.Details != nil {
		d := *s.state.Details
		st.Details = &d
	}
	return st
}

func (s *Store) fail(ctx context.Context, action string, res apiclient.Result, err error, fallback string) error {
	s.metrics.ObserveStoreOp("patients", action, false)
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("patient store operation cancelled", "action", action)
		return fmt.Errorf("patients: %s: %w", action, err)
	}
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		notify.Error(ctx, s.toaster, toastMessage(res, err, fallback))
	}
	s.logger.Warn("patient store operation failed", "action", action, "error", err)
	return fmt.Errorf("patients: %s: %w", action, err)
}

// toastMessage prefers the server's message. Transport errors carry the
// request URL, so they fall back to the generic text.
func toastMessage(res apiclient.Result, err error, fallback string) string {
	var apiErr *apiclient.Error
	if res.Message == "" || !errors.As(err, &apiErr) || apiErr.Transport() {
		return fallback
	}
	return res.Message
}

// FetchList loads one page of patients matching q.Search. When a newer
// FetchList started meanwhile, the answer is discarded.
func (s *Store) FetchList(ctx context.Context, q Query) error {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = s.pageSize
	}
	q.Search = strings.TrimSpace(q.Search)

	s.mu.Lock()
	s.listGen++
	gen := s.listGen
	s.state.IsLoading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if gen == s.listGen {
			s.state.IsLoading = false
		}
		s.mu.Unlock()
	}()

	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	res, err := s.api.Get(ctx, "/patients?"+v.Encode(), apiclient.WithOperation("patients.list"))
	if err != nil {
		return s.fail(ctx, "list", res, err, msgListFailed)
	}
	var page billing.Page[billing.Patient]
	if err := res.Decode(&page); err != nil {
		return s.fail(ctx, "list", res, err, msgListFailed)
	}

	s.mu.Lock()
	if gen != s.listGen {
		s.mu.Unlock()
		s.logger.Debug("dropping superseded patient page", "page", q.Page, "search", q.Search)
		return nil
	}
	s.state.List = page
	s.state.Query = q
	s.mu.Unlock()
	s.metrics.ObserveStoreOp("patients", "list", true)
	return nil
}

// FetchDetails loads one patient with their cases and appointment history.
func (s *Store) FetchDetails(ctx context.Context, patientID string) error {
	s.mu.Lock()
	s.state.IsPatientDetailsLoading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.state.IsPatientDetailsLoading = false
		s.mu.Unlock()
	}()

	res, err := s.api.Get(ctx, "/patients/details/"+url.PathEscape(patientID), apiclient.WithOperation("patients.details"))
	if err != nil {
		return s.fail(ctx, "details", res, err, msgDetailsFailed)
	}
	var details billing.PatientDetails
	if err := res.Decode(&details); err != nil {
		return s.fail(ctx, "details", res, err, msgDetailsFailed)
	}
	for i := range details.Cases {
		if err := details.Cases[i].Validate(); err != nil {
			s.logger.Warn("patient case breaks step invariant", "patient_id", patientID, "case_id", details.Cases[i].ID, "error", err)
		}
	}

	s.mu.Lock()
	s.state.Details = &details
	s.mu.Unlock()
	s.metrics.ObserveStoreOp("patients", "details", true)
	return nil
}
