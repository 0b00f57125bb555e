// Package reports fetches patient reports and downloads the spreadsheet
// export.
package reports

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// SpreadsheetMIME is the only content type accepted from the export endpoint.
const SpreadsheetMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	msgFetchFailed    = "Failed to fetch report"
	msgInvalidFormat  = "Invalid file format received"
	msgDownloadFailed = "Failed to download report"
)

// ErrInvalidFormat is returned when the export is not a spreadsheet.
var ErrInvalidFormat = errors.New("reports: invalid file format")

// API is the subset of the billing client used by the report store.
type API interface {
	Get(ctx context.Context, path string, opts ...apiclient.RequestOption) (apiclient.Result, error)
	Download(ctx context.Context, path string, opts ...apiclient.RequestOption) (*apiclient.Binary, error)
}

// Download is a validated spreadsheet export.
type Download struct {
	PatientID   string
	Filename    string
	ContentType string
	Body        []byte
}

// Filename is the name given to a patient's spreadsheet export.
func Filename(patientID string) string {
	return fmt.Sprintf("Patient_Report_%s.xlsx", patientID)
}

// State is a snapshot of the report slice.
type State struct {
	PatientID string          `json:"patientId,omitempty"`
	Report    *billing.Report `json:"reportData"`
	IsLoading bool            `json:"isLoading"`
}

// Options configures a Store.
type Options struct {
	Toaster  notify.Toaster
	Metrics  *metrics.APIMetrics
	Logger   *logging.Logger
	Archiver *Archiver
}

// Store is the report slice.
type Store struct {
	api      API
	toaster  notify.Toaster
	metrics  *metrics.APIMetrics
	logger   *logging.Logger
	archiver *Archiver

	mu    sync.RWMutex
	state State
}

// NewStore creates an empty report store.
func NewStore(api API, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		api:      api,
		toaster:  opts.Toaster,
		metrics:  opts.Metrics,
		logger:   logger.Component("reports"),
		archiver: opts.Archiver,
	}
}

// Snapshot returns a copy of the report slice.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if s.state.Report != nil {
		r := *s.state.Report
		r.Appointments = append([]billing.ReportLine(nil), s.state.Report.Appointments...)
		st.Report = &r
	}
	return st
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.state.IsLoading = v
	s.mu.Unlock()
}

func (s *Store) toast(ctx context.Context, err error, msg string) {
	if errors.Is(err, apiclient.ErrUnauthorized) || errors.Is(err, context.Canceled) {
		return
	}
	notify.Error(ctx, s.toaster, msg)
}

// Fetch loads the JSON report for a patient.
func (s *Store) Fetch(ctx context.Context, patientID string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	res, err := s.api.Get(ctx, reportPath(patientID, "report-json"), apiclient.WithOperation("reports.fetch"))
	if err == nil {
		var report billing.Report
		if err = res.Decode(&report); err == nil {
			s.mu.Lock()
			s.state.PatientID = patientID
			s.state.Report = &report
			s.mu.Unlock()
			s.metrics.ObserveStoreOp("reports", "fetch", true)
			return nil
		}
	}
	s.metrics.ObserveStoreOp("reports", "fetch", false)
	s.toast(ctx, err, msgFetchFailed)
	s.logger.Warn("report fetch failed", "patient_id", patientID, "error", err)
	return fmt.Errorf("reports: fetch %s: %w", patientID, err)
}

// Download fetches the spreadsheet export and checks its content type. When
// an archiver is configured the file is also copied to S3; archive failures
// are logged only.
func (s *Store) Download(ctx context.Context, patientID string) (*Download, error) {
	bin, err := s.api.Download(ctx, reportPath(patientID, "export-excel"),
		apiclient.WithOperation("reports.download"),
		apiclient.WithAccept(SpreadsheetMIME),
	)
	if err != nil {
		s.metrics.ObserveStoreOp("reports", "download", false)
		s.toast(ctx, err, msgDownloadFailed)
		s.logger.Warn("report download failed", "patient_id", patientID, "error", err)
		return nil, fmt.Errorf("reports: download %s: %w", patientID, err)
	}
	if !isSpreadsheet(bin.ContentType) {
		s.metrics.ObserveStoreOp("reports", "download", false)
		notify.Error(ctx, s.toaster, msgInvalidFormat)
		s.logger.Warn("report download has unexpected content type", "patient_id", patientID, "content_type", bin.ContentType)
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, bin.ContentType)
	}

	dl := &Download{
		PatientID:   patientID,
		Filename:    Filename(patientID),
		ContentType: SpreadsheetMIME,
		Body:        bin.Body,
	}
	s.metrics.ObserveStoreOp("reports", "download", true)

	if s.archiver.Enabled() {
		if _, err := s.archiver.Archive(ctx, dl); err != nil {
			s.logger.Warn("report archive failed", "patient_id", patientID, "error", err)
		}
	}
	return dl, nil
}

// Save writes dl into dir and returns the written path.
func Save(dl *Download, dir string) (string, error) {
	if dl == nil {
		return "", errors.New("reports: nothing to save")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("reports: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(dl.Filename))
	if err := os.WriteFile(path, dl.Body, 0o644); err != nil {
		return "", fmt.Errorf("reports: write %s: %w", path, err)
	}
	return path, nil
}

func reportPath(patientID, kind string) string {
	return "/cases/patient/" + url.PathEscape(patientID) + "/" + kind
}

func isSpreadsheet(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == SpreadsheetMIME
}
