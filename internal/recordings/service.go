// Package recordings provides access to the call-recording archive.
// The telephony provider drops recordings into an S3-compatible bucket and
// call-outcome events carry the object key; dashboard reads turn those keys
// into short-lived playback URLs.
package recordings

import (
	"context"
	"fmt"
	"io"
	"time"

	"dialerdesk_backend/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PlaybackURLTTL is how long a presigned playback link stays valid.
const PlaybackURLTTL = 15 * time.Minute

// PlaybackURL is a short-lived link to one recording object.
type PlaybackURL struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Archive defines recording archive operations. The calls module consumes
// this interface so reads can be faked in tests.
type Archive interface {
	PresignPlayback(ctx context.Context, objectKey string) (*PlaybackURL, error)
	FetchRecording(ctx context.Context, objectKey string) (io.ReadCloser, error)
}

// Service implements Archive against MinIO.
type Service struct {
	client *minio.Client
	bucket string
}

// New creates a recordings service and verifies the bucket exists.
func New(ctx context.Context, cfg config.RecordingsConfig) (*Service, error) {
	if !cfg.IsRecordingsEnabled() {
		return nil, fmt.Errorf("recordings storage is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &Service{client: client, bucket: cfg.GetRecordingsBucket()}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// PresignPlayback creates a short-lived GET link for one recording.
func (s *Service) PresignPlayback(ctx context.Context, objectKey string) (*PlaybackURL, error) {
	expiresAt := time.Now().Add(PlaybackURLTTL)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, PlaybackURLTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to presign recording playback: %w", err)
	}

	return &PlaybackURL{
		URL:       presigned.String(),
		ObjectKey: objectKey,
		ExpiresAt: expiresAt,
	}, nil
}

// FetchRecording streams one recording object. The caller closes the reader.
func (s *Service) FetchRecording(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recording: %w", err)
	}
	return object, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check recordings bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create recordings bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Compile-time check that Service implements Archive
var _ Archive = (*Service)(nil)
