package source

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/arrestlog/internal/common"
)

// FromConfig builds the configured source: the bucket when one is named,
// the directory otherwise.
func FromConfig(cfg common.SourceConfig, extractor PageExtractor, logger *slog.Logger) (TextSource, error) {
	if cfg.Bucket.Name != "" {
		client, err := NewMinioClient(cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: minio client: %v", common.ErrSource, err)
		}
		return NewBucket(client, cfg.Bucket.Name, cfg.Bucket.Prefix, BucketOptions{
			Extensions: cfg.Extensions,
			Extractor:  extractor,
		}, logger), nil
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, common.NewAppError("NO_SOURCE", "set a source directory or bucket", common.ErrInvalidInput)
	}
	return NewDirectory(cfg.Dir, DirectoryOptions{
		Extensions: cfg.Extensions,
		SkipHidden: true,
		Extractor:  extractor,
	}, logger), nil
}
