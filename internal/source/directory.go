package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// DirectoryOptions tunes which files a Directory picks up.
type DirectoryOptions struct {
	Extensions      []string // empty -> constants.AllowedExtensions
	SkipHidden      bool
	ContinueOnError bool // log and skip unreadable files instead of failing the listing
	Extractor       PageExtractor
}

// DirStats counts what the last List call saw.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Documents uint32
	Failed    uint32
}

// Directory reads OCR text dumps, Vision JSON and scans from a local tree.
type Directory struct {
	root   string
	opts   DirectoryOptions
	exts   map[string]struct{}
	logger *slog.Logger
	stats  DirStats
}

func NewDirectory(root string, opts DirectoryOptions, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{root: root, opts: opts, exts: allowed(opts.Extensions), logger: logger}
}

func (d *Directory) Name() string { return d.root }

// Stats returns the counters of the last List call.
func (d *Directory) Stats() DirStats { return d.stats }

// List walks root, filters by extension, decodes every match and returns the
// documents sorted by OrderKey.
func (d *Directory) List(ctx context.Context) ([]entity.Document, error) {
	if strings.TrimSpace(d.root) == "" {
		return nil, common.NewAppError("SOURCE_ERROR", "directory is required", common.ErrInvalidInput)
	}
	d.stats = DirStats{}

	var paths []string
	err := filepath.WalkDir(d.root, func(path string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == d.root {
				return walkErr
			}
			d.stats.Failed++
			d.logger.Warn("walk error", "path", path, "error", walkErr)
			return nil // continue walking
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// skip hidden dirs/files if requested
		if d.opts.SkipHidden && path != d.root && isHidden(path) {
			if de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if de.IsDir() {
			return nil
		}
		d.stats.Scanned++
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := d.exts[ext]; !ok {
			return nil
		}
		d.stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: walk %s: %v", common.ErrSource, d.root, err)
	}

	var docs []entity.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := d.readFile(ctx, path)
		if err != nil {
			d.stats.Failed++
			if !d.opts.ContinueOnError {
				return nil, err
			}
			d.logger.Warn("skipping file", "path", path, "error", err)
			continue
		}
		docs = append(docs, got...)
	}
	d.stats.Documents = uint32(len(docs))

	SortDocuments(docs)
	d.logger.Info("directory listed",
		"root", d.root,
		"scanned", d.stats.Scanned,
		"matched", d.stats.Matched,
		"documents", d.stats.Documents,
		"failed", d.stats.Failed,
	)
	return docs, nil
}

func (d *Directory) readFile(ctx context.Context, path string) ([]entity.Document, error) {
	name, err := filepath.Rel(d.root, path)
	if err != nil {
		name = path
	}
	name = filepath.ToSlash(name)

	format := constants.MapExtToFormat(filepath.Ext(path))
	if constants.NeedsOCR(format) {
		return decode(ctx, name, path, nil, d.opts.Extractor)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrSource, name, err)
	}
	return decode(ctx, name, path, data, d.opts.Extractor)
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
