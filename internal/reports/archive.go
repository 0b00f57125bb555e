package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/ace-billing/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ManifestEntry is one line of a patient's export manifest.
type ManifestEntry struct {
	PatientID  string `json:"patient_id"`
	Filename   string `json:"filename"`
	S3Key      string `json:"s3_key"`
	Size       int    `json:"size"`
	ArchivedAt string `json:"archived_at"`
}

// Archiver copies spreadsheet exports to S3.
type Archiver struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewArchiver creates an Archiver. If bucket is empty, Archive is a no-op.
func NewArchiver(s3Client S3API, bucket string, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{bucket: bucket, s3Client: s3Client, logger: logger.Component("report-archive"), now: time.Now}
}

// Enabled returns true if archival is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Key is the object key for an export archived at t.
func Key(patientID, filename string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("reports/%s/%d/%02d/%02d/%s", patientID, t.Year(), t.Month(), t.Day(), filename)
}

func manifestKey(patientID string) string {
	return fmt.Sprintf("reports/%s/manifest.jsonl", patientID)
}

// Archive puts dl to S3 and appends it to the patient's manifest. It returns
// the object key.
func (a *Archiver) Archive(ctx context.Context, dl *Download) (string, error) {
	if !a.Enabled() || dl == nil {
		return "", nil
	}
	now := a.now().UTC()
	key := Key(dl.PatientID, dl.Filename, now)

	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(dl.Body),
		ContentType: aws.String(dl.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("reports: s3 put %s: %w", key, err)
	}
	a.logger.Info("archived report export", "patient_id", dl.PatientID, "s3_key", key, "bytes", len(dl.Body))

	entry := ManifestEntry{
		PatientID:  dl.PatientID,
		Filename:   dl.Filename,
		S3Key:      key,
		Size:       len(dl.Body),
		ArchivedAt: now.Format(time.RFC3339),
	}
	if err := a.appendManifest(ctx, entry); err != nil {
		a.logger.Warn("failed to append report manifest", "error", err, "patient_id", dl.PatientID)
	}
	return key, nil
}

// appendManifest does a read-modify-write; S3 has no append.
func (a *Archiver) appendManifest(ctx context.Context, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("reports: marshal manifest entry: %w", err)
	}
	key := manifestKey(entry.PatientID)

	var existing []byte
	out, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(out.Body)
		_ = out.Body.Close()
		if err != nil {
			return fmt.Errorf("reports: read manifest: %w", err)
		}
	case isNotFound(err):
		a.logger.Debug("manifest not found, creating new", "key", key)
	default:
		return fmt.Errorf("reports: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("reports: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404") || strings.Contains(msg, "not found")
}
