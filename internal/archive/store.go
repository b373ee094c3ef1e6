// Package archive keeps a long-term JSON copy of finished bookings in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/wolfman30/caremarket-platform/internal/events"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

const recordVersion = "1.0"

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives terminal bookings. It is an events.DeliveryHandler; entries
// that are not terminal booking events are ignored.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

func (s *Store) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if !s.Enabled() || !events.IsBookingEvent(entry.Type) {
		return nil
	}
	evt, err := events.DecodeBookingEvent(entry)
	if err != nil {
		return err
	}
	if !evt.Status.Terminal() {
		return nil
	}
	return s.ArchiveBooking(ctx, BookingRecord{
		Version:    recordVersion,
		EventID:    entry.ID.String(),
		EventType:  entry.Type,
		ArchivedAt: s.now().UTC(),
		Booking:    evt,
	})
}

// ArchiveBooking writes the record under a date-partitioned key and appends
// it to the monthly manifest. Re-archiving the same booking overwrites the
// object.
func (s *Store) ArchiveBooking(ctx context.Context, record BookingRecord) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}
	at := record.ArchivedAt
	if at.IsZero() {
		at = s.now().UTC()
	}
	key := fmt.Sprintf("bookings/v1/provider=%s/%d/%02d/%s.json",
		record.Booking.ProviderID, at.Year(), at.Month(), record.Booking.BookingID)

	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived booking", "booking_id", record.Booking.BookingID, "status", record.Booking.Status, "s3_key", key)

	entry := ManifestEntry{
		BookingID:  record.Booking.BookingID.String(),
		ProviderID: record.Booking.ProviderID.String(),
		S3Key:      key,
		Status:     string(record.Booking.Status),
		ArchivedAt: at.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, at, entry); err != nil {
		s.logger.Warn("failed to append archive manifest", "error", err, "booking_id", record.Booking.BookingID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the manifest of at's month. S3 has
// no append, so the object is read, extended and rewritten.
func (s *Store) AppendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	key := ManifestKey(at)

	var existing []byte
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("archive manifest not found, creating", "key", key)
	default:
		return fmt.Errorf("archive: get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

// ManifestKey is the monthly manifest object for at.
func ManifestKey(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("bookings/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}
