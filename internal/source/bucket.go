package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// BucketOptions tunes which objects a Bucket picks up.
type BucketOptions struct {
	Extensions []string
	Extractor  PageExtractor
}

// Bucket reads OCR output from an S3-compatible bucket, e.g. the JSON files a
// document-AI batch job writes under one prefix.
type Bucket struct {
	client *minio.Client
	bucket string
	prefix string
	exts   map[string]struct{}
	opts   BucketOptions
	logger *slog.Logger
}

// NewMinioClient builds a client from the bucket section of the config.
func NewMinioClient(cfg common.BucketConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
}

func NewBucket(client *minio.Client, bucket, prefix string, opts BucketOptions, logger *slog.Logger) *Bucket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bucket{
		client: client,
		bucket: bucket,
		prefix: prefix,
		exts:   allowed(opts.Extensions),
		opts:   opts,
		logger: logger,
	}
}

func (b *Bucket) Name() string { return path.Join(b.bucket, b.prefix) }

// List fetches every matching object under the prefix and returns the
// documents sorted by OrderKey.
func (b *Bucket) List(ctx context.Context) ([]entity.Document, error) {
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    b.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", common.ErrSource, b.Name(), obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if _, ok := b.exts[constants.NormalizeExt(path.Ext(obj.Key))]; !ok {
			continue
		}
		keys = append(keys, obj.Key)
	}

	var docs []entity.Document
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := b.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		docs = append(docs, got...)
	}

	SortDocuments(docs)
	b.logger.Info("bucket listed", "bucket", b.bucket, "prefix", b.prefix, "objects", len(keys), "documents", len(docs))
	return docs, nil
}

func (b *Bucket) fetch(ctx context.Context, key string) ([]entity.Document, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", common.ErrSource, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrSource, key, err)
	}

	name := strings.TrimPrefix(strings.TrimPrefix(key, b.prefix), "/")
	if name == "" {
		name = path.Base(key)
	}
	if !constants.NeedsOCR(constants.MapExtToFormat(path.Ext(key))) {
		return decode(ctx, name, "", data, b.opts.Extractor)
	}

	local, cleanup, err := spill(key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: spill %s: %v", common.ErrSource, key, err)
	}
	defer cleanup()
	return decode(ctx, name, local, data, b.opts.Extractor)
}

// OutputName derives a file name from a bucket prefix: "logs/2017/" -> "logs-2017".
func OutputName(prefix string) string {
	p := strings.Trim(prefix, "/")
	if p == "" {
		return "arrests"
	}
	return strings.ReplaceAll(p, "/", "-")
}
