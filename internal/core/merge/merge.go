// Package merge folds per-document reconstruction results into one ordered
// result. The order documents are supplied in is the order of the output.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// Strategy reconstructs the records of a single document.
type Strategy interface {
	Name() string
	Reconstruct(doc entity.Document) entity.DocumentResult
}

// Accumulator is the running total of a fold. Add never writes into memory an
// earlier accumulator can see, so one value may be extended more than once.
type Accumulator struct {
	Documents int
	Records   []entity.Record
	Streams   entity.FieldStreams
	Dropped   map[string]int
	Ambiguous int
}

// Add appends r after everything already accumulated: records are
// concatenated and each field stream is extended.
func (a Accumulator) Add(r entity.DocumentResult) Accumulator {
	a.Documents++
	a.Records = append(slices.Clip(a.Records), r.Records...)

	if len(r.Streams) > 0 {
		streams := make(entity.FieldStreams, len(a.Streams)+len(r.Streams))
		maps.Copy(streams, a.Streams)
		for name, values := range r.Streams {
			streams[name] = append(slices.Clip(streams[name]), values...)
		}
		a.Streams = streams
	}

	if len(r.Dropped) > 0 {
		dropped := make(map[string]int, len(a.Dropped)+len(r.Dropped))
		maps.Copy(dropped, a.Dropped)
		for reason, n := range r.Dropped {
			dropped[reason] += n
		}
		a.Dropped = dropped
	}

	a.Ambiguous += r.Ambiguous
	return a
}

// DroppedTotal sums the drop counters.
func (a Accumulator) DroppedTotal() int {
	n := 0
	for _, c := range a.Dropped {
		n += c
	}
	return n
}

// Fold accumulates results in slice order.
func Fold(results []entity.DocumentResult) Accumulator {
	var acc Accumulator
	for _, r := range results {
		acc = acc.Add(r)
	}
	return acc
}

// Options tunes Run.
type Options struct {
	Workers int // documents reconstructed concurrently; <= 1 means sequential
	Logger  *slog.Logger
}

// Run reconstructs docs with s and folds the results in the order of docs.
// With more than one worker documents are processed concurrently, but each
// result is stored at its document's index and folded afterwards, so the
// output is identical to a sequential run.
func Run(ctx context.Context, docs []entity.Document, s Strategy, opts Options) (Accumulator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]entity.DocumentResult, len(docs))

	if opts.Workers <= 1 {
		for i, doc := range docs {
			if err := ctx.Err(); err != nil {
				return Accumulator{}, fmt.Errorf("reconstruct %s: %w", doc.Name, err)
			}
			results[i] = reconstruct(s, doc, logger)
		}
		return Fold(results), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("reconstruct %s: %w", doc.Name, err)
			}
			results[i] = reconstruct(s, doc, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Accumulator{}, err
	}
	return Fold(results), nil
}

func reconstruct(s Strategy, doc entity.Document, logger *slog.Logger) entity.DocumentResult {
	r := s.Reconstruct(doc)
	logger.Debug("merge.document",
		"doc", doc.Name,
		"page", doc.Page,
		"strategy", s.Name(),
		"records", len(r.Records),
		"dropped", r.DroppedTotal(),
	)
	return r
}
