// Package evidence stores and retrieves violation snapshots and
// camera ROI blobs in an S3-compatible object store.
package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/technosupport/ppe-guard/internal/config"
)

// Store wraps a minio client bound to one bucket.
type Store struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// New connects to the object store described by cfg. It does not
// create the bucket: provisioning the bucket is an operator
// responsibility outside this service's boot path.
func New(cfg config.Evidence) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: connect: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, publicBase: strings.TrimSuffix(cfg.PublicBase, "/")}, nil
}

// Upload stores data under objectName (typically
// "<cctv_id>/<timestamp>_<track_id>.jpg"). It returns only an error;
// the caller persists objectName as the violation event's image
// reference.
func (s *Store) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("evidence: upload %s: %w", objectName, err)
	}
	return nil
}

// Download fetches an object in full. Satisfies
// internal/cameracache.AreaFetcher for the filename-referenced ROI
// storage shape.
func (s *Store) Download(ctx context.Context, relativePath string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, relativePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("evidence: download %s: %w", relativePath, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("evidence: read %s: %w", relativePath, err)
	}
	return data, nil
}

// Delete removes an object, used when a violation event's evidence
// image is purged by the retention job.
func (s *Store) Delete(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("evidence: delete %s: %w", objectName, err)
	}
	return nil
}

// CreateSignedURL returns a time-limited GET URL for objectName, or
// the deployment's public base URL joined to objectName when one is
// configured (a public CDN/reverse-proxy path in front of the bucket).
func (s *Store) CreateSignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if s.publicBase != "" {
		return s.publicBase + "/" + strings.TrimPrefix(objectName, "/"), nil
	}

	reqParams := make(url.Values)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("evidence: presign %s: %w", objectName, err)
	}
	return u.String(), nil
}
