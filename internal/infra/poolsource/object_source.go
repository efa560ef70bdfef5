// Package poolsource loads guidance catalogs from outside the binary.
package poolsource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/airwise/internal/domain/guidance"
)

// maxCatalogSize caps how much of a catalog object is read.
const maxCatalogSize = 4 << 20

// Source yields a guidance catalog.
type Source interface {
	Load(ctx context.Context) (*guidance.Catalog, error)
}

// ObjectConfig locates a catalog in an S3-compatible bucket.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Key       string
}

// ObjectSource reads a YAML catalog from S3-compatible storage such as R2 or MinIO.
type ObjectSource struct {
	client *minio.Client
	bucket string
	key    string
	logger *slog.Logger
}

// NewObjectSource constructs the object storage source.
func NewObjectSource(cfg ObjectConfig, logger *slog.Logger) (*ObjectSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Bucket) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("guidance object source requires bucket and key")
	}
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       !strings.HasPrefix(strings.ToLower(strings.TrimSpace(cfg.Endpoint)), "http://"),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage client: %w", err)
	}
	return &ObjectSource{
		client: client,
		bucket: cfg.Bucket,
		key:    cfg.Key,
		logger: logger.With("component", "poolsource.object"),
	}, nil
}

// Load downloads and parses the catalog object.
func (s *ObjectSource) Load(ctx context.Context) (*guidance.Catalog, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get catalog object: %w", err)
	}
	defer obj.Close()
	info, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat catalog object %s/%s: %w", s.bucket, s.key, err)
	}
	if info.Size > maxCatalogSize {
		return nil, fmt.Errorf("catalog object too large: %d bytes", info.Size)
	}
	data, err := io.ReadAll(io.LimitReader(obj, maxCatalogSize))
	if err != nil {
		return nil, fmt.Errorf("read catalog object: %w", err)
	}
	catalog, err := guidance.ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("guidance catalog loaded", "bucket", s.bucket, "key", s.key, "etag", info.ETag, "pools", catalog.Names())
	return catalog, nil
}

// FileSource reads a YAML catalog from local disk.
type FileSource struct {
	Path string
}

// Load reads and parses the catalog file.
func (s FileSource) Load(context.Context) (*guidance.Catalog, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return guidance.ParseCatalog(data)
}

// EmbeddedSource yields the catalog compiled into the binary.
type EmbeddedSource struct{}

// Load parses the embedded catalog.
func (EmbeddedSource) Load(context.Context) (*guidance.Catalog, error) {
	return guidance.DefaultCatalog()
}

// LoadWithFallback tries primary and falls back to the embedded catalog,
// logging why.
func LoadWithFallback(ctx context.Context, primary Source, logger *slog.Logger) (*guidance.Catalog, error) {
	if primary != nil {
		catalog, err := primary.Load(ctx)
		if err == nil {
			return catalog, nil
		}
		if logger != nil {
			logger.Warn("guidance catalog unavailable, using embedded catalog", "error", err)
		}
	}
	return EmbeddedSource{}.Load(ctx)
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
