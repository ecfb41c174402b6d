package server

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/source"
)

// SourceResolver turns a client-supplied prefix into a TextSource rooted
// under the configured location. Prefixes may not climb out of it.
type SourceResolver interface {
	Resolve(prefix string) (source.TextSource, error)
}

// cleanPrefix returns prefix as a slash path relative to the root.
func cleanPrefix(prefix string) (string, error) {
	prefix = strings.TrimSpace(filepath.ToSlash(prefix))
	for _, seg := range strings.Split(prefix, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: prefix %q leaves the source root", common.ErrInvalidInput, prefix)
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+prefix), "/")
	return rel, nil
}

type DirectoryResolver struct {
	root   string
	opts   source.DirectoryOptions
	logger *slog.Logger
}

func NewDirectoryResolver(root string, opts source.DirectoryOptions, logger *slog.Logger) *DirectoryResolver {
	return &DirectoryResolver{root: root, opts: opts, logger: logger}
}

func (r *DirectoryResolver) Resolve(prefix string) (source.TextSource, error) {
	rel, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(r.root, filepath.FromSlash(rel))
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, rel)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", common.ErrInvalidInput, rel)
	}
	return source.NewDirectory(dir, r.opts, r.logger), nil
}

type BucketResolver struct {
	client *minio.Client
	bucket string
	base   string
	opts   source.BucketOptions
	logger *slog.Logger
}

func NewBucketResolver(client *minio.Client, bucket, base string, opts source.BucketOptions, logger *slog.Logger) *BucketResolver {
	return &BucketResolver{client: client, bucket: bucket, base: base, opts: opts, logger: logger}
}

func (r *BucketResolver) Resolve(prefix string) (source.TextSource, error) {
	rel, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	p := strings.Trim(path.Join(r.base, rel), "/")
	if p != "" {
		p += "/"
	}
	return source.NewBucket(r.client, r.bucket, p, r.opts, r.logger), nil
}

// ResolverFromConfig mirrors source.FromConfig. It returns nil when no
// source is configured, which leaves SubmitRun disabled.
func ResolverFromConfig(cfg common.SourceConfig, extractor source.PageExtractor, logger *slog.Logger) (SourceResolver, error) {
	if cfg.Bucket.Name != "" {
		client, err := source.NewMinioClient(cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: minio client: %v", common.ErrSource, err)
		}
		return NewBucketResolver(client, cfg.Bucket.Name, cfg.Bucket.Prefix, source.BucketOptions{
			Extensions: cfg.Extensions,
			Extractor:  extractor,
		}, logger), nil
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, nil
	}
	return NewDirectoryResolver(cfg.Dir, source.DirectoryOptions{
		Extensions: cfg.Extensions,
		SkipHidden: true,
		Extractor:  extractor,
	}, logger), nil
}
