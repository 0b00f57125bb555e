// Package cases caches case lists, the open case, and dashboard counts, and
// drives the step and appointment updates.
package cases

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/internal/progress"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// DefaultPageSize is the page size used when listing a patient's cases.
const DefaultPageSize = 100

const (
	msgFetchFailed  = "Failed to fetch patient data"
	msgUpdateFailed = "Failed to update case step"
)

// API is the subset of the billing client used by the case store.
type API interface {
	Get(ctx context.Context, path string, opts ...apiclient.RequestOption) (apiclient.Result, error)
	Put(ctx context.Context, path string, body any, opts ...apiclient.RequestOption) (apiclient.Result, error)
}

// State is a snapshot of the case slice.
type State struct {
	List          billing.Page[billing.Case] `json:"caseList"`
	Current       *billing.Case              `json:"caseData"`
	Summary       billing.Summary            `json:"patientSummary"`
	Status        billing.StatusCounts       `json:"caseStatus"`
	IsLoading     bool                       `json:"isLoading"`
	IsStepLoading bool                       `json:"isStepLoading"`
}

// Options configures a Store.
type Options struct {
	PageSize int
	Toaster  notify.Toaster
	Metrics  *metrics.APIMetrics
	Logger   *logging.Logger
}

// Store is the case slice.
type Store struct {
	api      API
	pageSize int
	toaster  notify.Toaster
	metrics  *metrics.APIMetrics
	logger   *logging.Logger

	mu    sync.RWMutex
	state State
	// highest status seen per case id
	seen map[string]billing.CaseStatus
}

// NewStore creates an empty case store.
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
		logger:   logger.Component("cases"),
		seen:     make(map[string]billing.CaseStatus),
	}
}

// Snapshot returns a copy of the case slice.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.List.List = append([]billing.Case(nil), s.state.List.List...)
	if s.state.Current != nil {
		c := *s.state.Current
		st.Current = &c
	}
	return st
}

// Current returns the open case, if any.
func (s *Store) Current() (billing.Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Current == nil {
		return billing.Case{}, false
	}
	return *s.state.Current, true
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.state.IsLoading = v
	s.mu.Unlock()
}

func (s *Store) setStepLoading(v bool) {
	s.mu.Lock()
	s.state.IsStepLoading = v
	s.mu.Unlock()
}

func (s *Store) fail(ctx context.Context, action string, res apiclient.Result, err error, fallback string) error {
	s.metrics.ObserveStoreOp("cases", action, false)
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("case store operation cancelled", "action", action)
		return fmt.Errorf("cases: %s: %w", action, err)
	}
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		msg := res.Message
		var apiErr *apiclient.Error
		if msg == "" || !errors.As(err, &apiErr) || apiErr.Transport() {
			msg = fallback
		}
		notify.Error(ctx, s.toaster, msg)
	}
	s.logger.Warn("case store operation failed", "action", action, "error", err)
	return fmt.Errorf("cases: %s: %w", action, err)
}

// FetchList loads one page of a patient's cases. page is 0-indexed and sent
// to the API as page+1. A limit of 0 uses the store page size.
func (s *Store) FetchList(ctx context.Context, patientID string, page, limit int) error {
	if page < 0 {
		page = 0
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	s.setLoading(true)
	defer s.setLoading(false)

	q := url.Values{}
	q.Set("page", strconv.Itoa(page+1))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("patientId", patientID)

	res, err := s.api.Get(ctx, "/cases?"+q.Encode(), apiclient.WithOperation("cases.list"))
	if err != nil {
		return s.fail(ctx, "list", res, err, msgFetchFailed)
	}
	var list billing.Page[billing.Case]
	if err := res.Decode(&list); err != nil {
		return s.fail(ctx, "list", res, err, msgFetchFailed)
	}
	for i := range list.List {
		if err := list.List[i].Validate(); err != nil {
			s.logger.Warn("case in list breaks step invariant", "case_id", list.List[i].ID, "error", err)
		}
	}

	s.mu.Lock()
	s.state.List = list
	s.mu.Unlock()
	s.metrics.ObserveStoreOp("cases", "list", true)
	return nil
}

// FetchCase clears the open case and loads it fresh.
func (s *Store) FetchCase(ctx context.Context, caseID string) error {
	s.setLoading(true)
	defer s.setLoading(false)
	s.setCurrent(nil)

	res, err := s.api.Get(ctx, "/cases/"+url.PathEscape(caseID), apiclient.WithOperation("cases.fetch"))
	if err != nil {
		return s.fail(ctx, "fetch", res, err, msgFetchFailed)
	}
	c, err := decodeCase(res)
	if err != nil {
		return s.fail(ctx, "fetch", res, err, msgFetchFailed)
	}
	s.replaceCurrent(c)
	s.metrics.ObserveStoreOp("cases", "fetch", true)
	return nil
}

// FetchSummary loads the dashboard headline counts.
func (s *Store) FetchSummary(ctx context.Context) error {
	res, err := s.api.Get(ctx, "/cases/patientSummary", apiclient.WithOperation("cases.summary"))
	if err != nil {
		return s.fail(ctx, "summary", res, err, msgFetchFailed)
	}
	var summary billing.Summary
	if err := res.Decode(&summary); err != nil {
		return s.fail(ctx, "summary", res, err, msgFetchFailed)
	}
	s.mu.Lock()
	s.state.Summary = summary
	s.mu.Unlock()
	s.metrics.ObserveStoreOp("cases", "summary", true)
	return nil
}

// FetchStatus loads the dashboard status distribution.
func (s *Store) FetchStatus(ctx context.Context) error {
	res, err := s.api.Get(ctx, "/cases/caseStatus", apiclient.WithOperation("cases.status"))
	if err != nil {
		return s.fail(ctx, "status", res, err, msgFetchFailed)
	}
	var counts billing.StatusCounts
	if err := res.Decode(&counts); err != nil {
		return s.fail(ctx, "status", res, err, msgFetchFailed)
	}
	s.mu.Lock()
	s.state.Status = counts
	s.mu.Unlock()
	s.metrics.ObserveStoreOp("cases", "status", true)
	return nil
}

// UpdateStep marks a step complete. The form rules and the step gate run
// against c before any request; a gated request never reaches the server.
// The open case is cleared while the update is in flight and replaced by the
// server's answer.
func (s *Store) UpdateStep(ctx context.Context, c billing.Case, req progress.MarkRequest) error {
	if req.CaseID == "" {
		req.CaseID = c.ID
	}
	if err := req.Check(c); err != nil {
		notify.Error(ctx, s.toaster, err.Error())
		s.metrics.ObserveStoreOp("cases", "update_step", false)
		return fmt.Errorf("cases: update step: %w", err)
	}
	step, _ := c.Step(req.Step)
	stepID := step.ID
	if stepID == "" {
		stepID = strconv.Itoa(req.Step)
	}

	s.setStepLoading(true)
	defer s.setStepLoading(false)
	s.setCurrent(nil)

	body := stepUpdate{ReductionAmount: req.ReductionAmount, ChequeNo: req.ChequeNo}
	path := "/cases/" + url.PathEscape(req.CaseID) + "/steps/" + url.PathEscape(stepID)
	res, err := s.api.Put(ctx, path, body, apiclient.WithOperation("cases.update_step"))
	if err != nil {
		return s.fail(ctx, "update_step", res, err, msgUpdateFailed)
	}
	updated, err := decodeCase(res)
	if err != nil {
		return s.fail(ctx, "update_step", res, err, msgUpdateFailed)
	}
	s.replaceCurrent(updated)
	s.metrics.ObserveStoreOp("cases", "update_step", true)
	s.logger.Info("case step updated", "case_id", req.CaseID, "step", req.Step)
	return nil
}

type stepUpdate struct {
	ReductionAmount float64 `json:"reductionAmount"`
	ChequeNo        string  `json:"chequeNo,omitempty"`
}

type appointmentsUpdate struct {
	Appointments []billing.Appointment `json:"appointments"`
}

// UpdateAppointments replaces the whole appointment array of a case.
func (s *Store) UpdateAppointments(ctx context.Context, caseID string, appointments []billing.Appointment) error {
	if appointments == nil {
		appointments = []billing.Appointment{}
	}
	s.setStepLoading(true)
	defer s.setStepLoading(false)

	path := "/cases/" + url.PathEscape(caseID) + "/appointments"
	res, err := s.api.Put(ctx, path, appointmentsUpdate{Appointments: appointments}, apiclient.WithOperation("cases.update_appointments"))
	if err != nil {
		return s.fail(ctx, "update_appointments", res, err, msgUpdateFailed)
	}
	updated, err := decodeCase(res)
	if err != nil {
		return s.fail(ctx, "update_appointments", res, err, msgUpdateFailed)
	}
	s.replaceCurrent(updated)
	s.metrics.ObserveStoreOp("cases", "update_appointments", true)
	return nil
}

func decodeCase(res apiclient.Result) (billing.Case, error) {
	var c billing.Case
	if err := res.Decode(&c); err != nil {
		return billing.Case{}, err
	}
	if err := c.Validate(); err != nil {
		return billing.Case{}, err
	}
	return c, nil
}

func (s *Store) setCurrent(c *billing.Case) {
	s.mu.Lock()
	s.state.Current = c
	s.mu.Unlock()
}

// replaceCurrent installs the server's case as the open case. A status
// ranked below the highest seen for the same id is logged but installed
// unchanged; the high-water mark is not lowered.
func (s *Store) replaceCurrent(c billing.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.seen[c.ID]; ok && c.Status.Valid() && c.Status.Rank() < prev.Rank() {
		s.logger.Warn("server returned lower case status", "case_id", c.ID, "status", c.Status, "seen", prev)
	} else if c.Status.Valid() {
		s.seen[c.ID] = c.Status
	}
	s.state.Current = &c
}
