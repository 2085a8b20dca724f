// Package storage keeps exported videos on local disk or in an S3 bucket.
package storage

import (
	"io"
	"time"
)

// Provider is implemented by every storage backend.
type Provider interface {
	List(bucket, prefix string) ([]string, error)
	Get(bucket, key string) (*FileObject, error)
	Put(bucket, key string, body io.ReadSeeker, contentType, cacheControl string) error
	Delete(bucket, key string) error
	Exists(bucket, key string) (bool, error)
}

// FileObject is the backend-agnostic view of a stored file.
type FileObject struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
	LastModified  time.Time
}
