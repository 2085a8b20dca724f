package storage

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

// Options selects and configures a backend.
type Options struct {
	Provider string // "local" (default) or "s3"
	LocalDir string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // S3-compatible endpoint, empty for AWS
	KeyID    string
	Secret   string
}

// Store saves export artifacts to the configured backend.
type Store struct {
	backend Provider
	bucket  string
	prefix  string
}

// New builds a Store. Missing S3 credentials fall back to the default AWS
// credential chain.
func New(o Options) (*Store, error) {
	switch o.Provider {
	case "", "local":
		dir := o.LocalDir
		if dir == "" {
			dir = "exports"
		}
		return NewStore(NewLocalProvider(dir), "", o.Prefix), nil
	case "s3":
		if o.Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires S3_BUCKET")
		}
		cfg := &aws.Config{Region: aws.String(o.Region)}
		if o.KeyID != "" {
			cfg.Credentials = credentials.NewStaticCredentials(o.KeyID, o.Secret, "")
		}
		if o.Endpoint != "" {
			cfg.Endpoint = aws.String(o.Endpoint)
			cfg.S3ForcePathStyle = aws.Bool(true)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 session: %w", err)
		}
		return NewStore(NewS3Provider(sess), o.Bucket, o.Prefix), nil
	}
	return nil, fmt.Errorf("unknown storage provider %q", o.Provider)
}

// NewStore wraps an existing backend.
func NewStore(backend Provider, bucket, prefix string) *Store {
	return &Store{backend: backend, bucket: bucket, prefix: prefix}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// SaveArtifact uploads the file at src under name and returns the key.
// name must be a plain file name.
func (s *Store) SaveArtifact(name, src, contentType string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: artifact name %q", ErrBadKey, name)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := s.key(name)
	if err := s.backend.Put(s.bucket, key, f, contentType, "no-cache"); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	log.Printf("Stored artifact %s", key)
	return key, nil
}

// Open returns the artifact stored under key.
func (s *Store) Open(key string) (*FileObject, error) {
	return s.backend.Get(s.bucket, key)
}

// Exists reports whether key is stored.
func (s *Store) Exists(key string) (bool, error) {
	return s.backend.Exists(s.bucket, key)
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	return s.backend.Delete(s.bucket, key)
}

// Artifacts lists stored artifacts.
func (s *Store) Artifacts() ([]string, error) {
	return s.backend.List(s.bucket, s.prefix)
}

// ContentType returns the MIME type for an artifact extension.
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	}
	return "application/octet-stream"
}
