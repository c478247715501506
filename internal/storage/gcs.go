package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
)

// GCSProvider mirrors completed downloads into a Google Cloud Storage
// bucket, under an optional key prefix.
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSProvider dials GCS using Application Default Credentials and
// verifies the bucket exists before returning.
func NewGCSProvider(ctx context.Context, bucket, prefix string) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("checking bucket %q: %w", bucket, err)
	}
	return &GCSProvider{client: client, bucket: bucket, prefix: prefix}, nil
}

// Upload streams localPath's contents to the bucket at prefix/key.
func (g *GCSProvider) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	objectName := key
	if g.prefix != "" {
		objectName = path.Join(g.prefix, key)
	}
	wc := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(wc, f); err != nil {
		wc.Close()
		return fmt.Errorf("writing object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSProvider) Close() error {
	return g.client.Close()
}
