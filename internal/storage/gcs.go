package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"

	"github.com/starcoach/starcoach/internal/utils"
)

// GCSUploader stores recordings in a private bucket. Objects keep the bucket's
// default ACL; recordings are meeting audio and must never be public.
type GCSUploader struct {
	client *gcs.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	const op = "GCSUploader.New"
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create storage client", err)
	}
	return &GCSUploader{client: c, bucket: bucket}, nil
}

func (u *GCSUploader) Close() error { return u.client.Close() }

func (u *GCSUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	const op = "GCSUploader.Upload"

	obj := u.client.Bucket(u.bucket).Object(objectName)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", utils.E(utils.CodeUnavailable, op, "upload failed", err)
	}
	if err := w.Close(); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "upload failed", err)
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, objectName), nil
}
