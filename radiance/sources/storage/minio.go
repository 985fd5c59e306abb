package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"radiance/radiance/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ReportStore keeps uploaded medical-report images. The pipeline never
// touches the bytes: it only needs a URL the completion backend can fetch,
// so uploads hand back an object key and PresignedReportURL turns that key
// into a time-limited link used as the image_url part of the Medical
// Analyst prompt.
type ReportStore struct {
	client *minio.Client
	bucket string
}

func NewReportStore(cfg config.Config) (*ReportStore, error) {
	client, err := minio.New(
		cfg.MinIOEndpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: false,
		},
	)
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(context.Background(), cfg.MinIOBucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), cfg.MinIOBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &ReportStore{client: client, bucket: cfg.MinIOBucket}, nil
}

func (s *ReportStore) UploadReportImage(ctx context.Context, userID int, name, contentType string, r io.Reader, size int64) (string, error) {
	key := filepath.Join("reports", fmt.Sprintf("%d", userID), uuid.New().String()+filepath.Ext(name))
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return key, nil
}

// PresignedReportURL returns a GET link valid long enough for the whole
// chain to run.
func (s *ReportStore) PresignedReportURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, time.Hour, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
