// Package s3 keeps parquet tables and document collections in an S3 compatible
// bucket, optionally below a namespace shared by one deployment.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chatdb/chatdb/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucket is the part of the S3 API the store uses. Names are full object names
// inside one bucket.
type bucket interface {
	PutObject(ctx context.Context, name string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, name string) (io.ReadCloser, error)
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, region string) error
}

type Store struct {
	bucket    bucket
	namespace string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	b, err := dialBucket(cfg, name)
	if err != nil {
		return nil, err
	}
	store := &Store{bucket: b, namespace: cleanNamespace(cfg.Prefix)}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, fmt.Errorf("bucket %q: %w", name, err)
		}
	}
	return store, nil
}

func newStore(namespace string, b bucket) (*Store, error) {
	if b == nil {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Store{bucket: b, namespace: cleanNamespace(namespace)}, nil
}

// Put uploads a table file or collection document.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	name, key, err := s.objectName(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if _, err := s.bucket.PutObject(ctx, name, body, size, opts.ContentType); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %q: %w", key, err)
	}
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	name, key, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.GetObject(ctx, name)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("download %q: %w", key, err)
	}
	return reader, nil
}

// List returns the objects under prefix in key order, with the namespace
// removed. An empty prefix lists tables and collections together.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if strings.Contains(prefix, "..") {
		return nil, fmt.Errorf("invalid list prefix: %q", prefix)
	}
	listed, err := s.bucket.ListObjects(ctx, s.namespaced(prefix))
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	out := make([]storage.ObjectInfo, 0, len(listed))
	for _, info := range listed {
		info.Key = s.relative(info.Key)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.bucket.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.bucket.Create(ctx, region); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}

// objectName returns the bucket object name and the cleaned store key.
func (s *Store) objectName(key string) (string, string, error) {
	cleaned, err := storage.ObjectKey(key)
	if err != nil {
		return "", "", err
	}
	return s.namespaced(cleaned), cleaned, nil
}

func (s *Store) namespaced(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + "/" + key
}

func (s *Store) relative(name string) string {
	if s.namespace == "" {
		return name
	}
	return strings.TrimPrefix(name, s.namespace+"/")
}

func cleanNamespace(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if cleaned := path.Clean(prefix); cleaned != "." {
		return cleaned
	}
	return ""
}

func dialBucket(cfg Config, name string) (*minioBucket, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioBucket{client: client, name: name}, nil
}

// parseEndpoint accepts host:port or a URL. An https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) PutObject(ctx context.Context, name string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := b.client.PutObject(ctx, b.name, name, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, notFoundAware(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size}, nil
}

// GetObject stats the object before returning it, so a missing key fails here
// rather than on the first read.
func (b *minioBucket) GetObject(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.name, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFoundAware(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, notFoundAware(err)
	}
	return obj, nil
}

func (b *minioBucket) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	for obj := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, notFoundAware(obj.Err)
		}
		infos = append(infos, storage.ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return infos, nil
}

func (b *minioBucket) Exists(ctx context.Context) (bool, error) {
	return b.client.BucketExists(ctx, b.name)
}

func (b *minioBucket) Create(ctx context.Context, region string) error {
	return b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region})
}

func notFoundAware(err error) error {
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return storage.ErrObjectNotFound
		}
	}
	return err
}
