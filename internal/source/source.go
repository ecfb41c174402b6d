// Package source turns OCR output into ordered documents.
//
// Every TextSource returns its documents already sorted by OrderKey; the
// merge step relies on that order and never re-sorts.
package source

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/core/ocr"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// TextSource yields the raw text of every source unit in merge order.
type TextSource interface {
	Name() string
	List(ctx context.Context) ([]entity.Document, error)
}

// PageExtractor runs OCR over a scanned file. *ocr.Extractor satisfies it.
type PageExtractor interface {
	Extract(ctx context.Context, path string) (ocr.ExtractionResult, error)
}

// Static serves documents handed in by the caller, e.g. a gRPC request.
type Static struct {
	name string
	docs []entity.Document
}

func NewStatic(name string, docs []entity.Document) *Static {
	return &Static{name: name, docs: docs}
}

func (s *Static) Name() string { return s.name }

// List returns the documents in the order given.
func (s *Static) List(ctx context.Context) ([]entity.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]entity.Document, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

// OrderKey returns the integer that ends the file's base name ("log_2017.txt"
// gives 2017). Names without one get -1 and sort first.
func OrderKey(name string) int {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end {
		return -1
	}
	n := 0
	for _, c := range stem[start:end] {
		if n > (math.MaxInt32-9)/10 {
			// clamp; ties fall back to name order
			return math.MaxInt32
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// SortDocuments orders by OrderKey, then name, then page. The sort is stable.
func SortDocuments(docs []entity.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.OrderKey != b.OrderKey {
			return a.OrderKey < b.OrderKey
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Page < b.Page
	})
}

// allowed builds the extension filter; empty means constants.AllowedExtensions.
func allowed(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return constants.AllowedExtensions
	}
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

// decode turns one file's bytes into documents. Scans need path on local disk.
func decode(ctx context.Context, name, path string, data []byte, extractor PageExtractor) ([]entity.Document, error) {
	format := constants.MapExtToFormat(filepath.Ext(name))
	key := OrderKey(name)
	switch format {
	case constants.TEXT:
		return []entity.Document{{Name: name, OrderKey: key, Format: format, Text: string(data)}}, nil
	case constants.VISION:
		pages, err := DecodeVision(data)
		if err != nil {
			return nil, common.WrapError(err, name)
		}
		docs := make([]entity.Document, 0, len(pages))
		for _, p := range pages {
			docs = append(docs, entity.Document{Name: name, OrderKey: key, Page: p.Number, Format: format, Text: p.Text})
		}
		return docs, nil
	case constants.PDF, constants.IMAGE:
		if extractor == nil {
			return nil, fmt.Errorf("%s: %w: no OCR extractor configured for %s", name, common.ErrUnsupportedFormat, format)
		}
		res, err := extractor.Extract(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("ocr %s: %w", name, err)
		}
		docs := make([]entity.Document, 0, len(res.Pages))
		for i, text := range res.Pages {
			page := i + 1
			if len(res.Pages) == 1 {
				page = 0
			}
			docs = append(docs, entity.Document{Name: name, OrderKey: key, Page: page, Format: format, Text: text})
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("%s: %w", name, common.ErrUnsupportedFormat)
	}
}

// spill writes a downloaded scan to a temp file that keeps its extension.
func spill(name string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "arrestlog-*"+filepath.Ext(name))
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}
