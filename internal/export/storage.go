package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Uploader writes an object to a bucket.
type Uploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error
}

// GCSUploader uploads to Google Cloud Storage. It assumes Application
// Default Credentials are configured (gcloud auth application-default login).
type GCSUploader struct{}

// NewGCSUploader creates a new GCSUploader.
func NewGCSUploader() *GCSUploader {
	return &GCSUploader{}
}

// Upload implements Uploader.
func (u *GCSUploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy report to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	return nil
}

// Fetch downloads the object behind a gs:// URI.
func Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	return data, nil
}

// ParseGCSURI splits gs://bucket/path into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
