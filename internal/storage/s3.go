// Package storage wraps an S3-compatible object store behind the small
// get/put/list surface the sync pipeline needs. Missing objects are
// reported with ErrNotFound rather than a transport error.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound reports an object miss. Get also returns it for transient
// read failures, which are logged and treated as a miss by design.
var ErrNotFound = errors.New("storage: object not found")

// Config carries the connection settings for the bucket.
type Config struct {
	Endpoint  string // host[:port]; empty means AWS S3
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store is a thin client for one bucket.
type Store struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// New connects to the configured endpoint. It does not create the
// bucket; a missing bucket surfaces on the first operation.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
		cfg.UseSSL = true
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init client: %w", err)
	}

	return &Store{client: client, bucket: bucket, log: log}, nil
}

// Get returns the object body, or ErrNotFound when the key does not
// exist. Any other read failure is logged and reported as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		s.log.Warn("storage get failed", "key", key, "error", err)
		return nil, ErrNotFound
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, ErrNotFound
		}
		s.log.Warn("storage get failed", "key", key, "error", err)
		return nil, ErrNotFound
	}
	return data, nil
}

// Put uploads body under key with the given content type. Failures
// propagate to the caller.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if body == nil {
		body = []byte{}
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	s.log.Debug("uploaded object", "key", key, "content_type", contentType, "bytes", len(body))
	return nil
}

// List returns all keys under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0, 32)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, obj.Err)
		}
		if obj.Key == "" {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}
