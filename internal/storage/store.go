package storage

import (
	"context"
	"io"
	"os"
)

// ImageStore is the boundary to wherever uploaded dish images live. The
// engine only ever needs to save an upload once and read the bytes back for
// analyzer invocations.
type ImageStore interface {
	Save(ctx context.Context, key string, contentType string, r io.Reader) (url string, err error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// FromEnv selects the configured backend: "s3" for an S3-compatible bucket
// (R2 and friends), anything else for local disk.
func FromEnv(ctx context.Context) (ImageStore, error) {
	if os.Getenv("STORAGE_BACKEND") == "s3" {
		return NewS3Store(ctx)
	}
	dir := os.Getenv("IMAGE_DIR")
	if dir == "" {
		dir = "uploads/images"
	}
	return NewLocalStore(dir)
}
