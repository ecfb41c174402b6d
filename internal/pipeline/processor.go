// Package pipeline runs one reconstruction pass: list documents, clean them,
// reconstruct records, merge in order and hand the result to the sinks.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/core/blocks"
	"github.com/joseph-ayodele/arrestlog/internal/core/fieldstream"
	"github.com/joseph-ayodele/arrestlog/internal/core/merge"
	"github.com/joseph-ayodele/arrestlog/internal/core/ocr"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
	"github.com/joseph-ayodele/arrestlog/internal/export"
	"github.com/joseph-ayodele/arrestlog/internal/source"
)

// RunTracker persists the lifecycle of a run. The SQL repository implements it.
type RunTracker interface {
	Start(ctx context.Context, run entity.ExtractRun) error
	Finish(ctx context.Context, res entity.Result) error
	Fail(ctx context.Context, runID uuid.UUID, message string) error
}

// Option customizes a Processor.
type Option func(*Processor)

// WithSinks adds record sinks, written in the order given.
func WithSinks(sinks ...export.RecordSink) Option {
	return func(p *Processor) { p.sinks = append(p.sinks, sinks...) }
}

// WithTracker records every run through t.
func WithTracker(t RunTracker) Option {
	return func(p *Processor) { p.tracker = t }
}

// Processor coordinates source listing, reconstruction and export.
type Processor struct {
	strategies         map[string]merge.Strategy
	defaultStrategy    string
	fieldStreamEnabled bool
	workers            int
	preclean           bool
	sinks              []export.RecordSink
	tracker            RunTracker
	logger             *slog.Logger
}

func NewProcessor(cfg common.ExtractConfig, logger *slog.Logger, opts ...Option) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	specs, err := FieldSpecs(cfg)
	if err != nil {
		return nil, err
	}
	def := cfg.Strategy
	if def == "" {
		def = constants.StrategyBlocks
	}
	p := &Processor{
		strategies: map[string]merge.Strategy{
			constants.StrategyBlocks: blocks.NewSegmenter(BlocksConfig(cfg), logger),
			constants.StrategyFields: fieldstream.NewStrategy(specs, logger),
		},
		defaultStrategy:    def,
		fieldStreamEnabled: cfg.FieldStreamEnabled,
		workers:            cfg.Workers,
		preclean:           cfg.Preclean,
		logger:             logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Strategy resolves a strategy name. "" selects the configured default; a
// disabled field-stream strategy falls back to blocks.
func (p *Processor) Strategy(name string) (merge.Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = p.defaultStrategy
	}
	if name == constants.StrategyFields && !p.fieldStreamEnabled {
		p.logger.Warn("field-stream strategy disabled, using blocks", "requested", name)
		name = constants.StrategyBlocks
	}
	s, ok := p.strategies[name]
	if !ok {
		return nil, common.NewAppError("INVALID_STRATEGY", fmt.Sprintf("unknown strategy %q", name), common.ErrInvalidInput)
	}
	return s, nil
}

// Run lists src, reconstructs every document with the named strategy and
// writes the merged result to all sinks. A run ID already on ctx (see
// common.WithRunID) is reused so callers can hand it out before the run starts.
//
// With Preclean on (the default) both strategies see whitespace-normalized
// text: runs of spaces are collapsed and lines are right-trimmed. Field-stream
// values and the block case number are therefore not byte-for-byte raw, and a
// same-line suffix never reads a trailing blank. Turn Preclean off to get the
// OCR text untouched.
func (p *Processor) Run(ctx context.Context, src source.TextSource, strategy string) (entity.Result, error) {
	start := time.Now()
	runID, err := uuid.Parse(common.RunIDFromContext(ctx))
	if err != nil {
		runID = uuid.New()
		ctx = common.WithRunID(ctx, runID.String())
	}
	log := common.LoggerFrom(ctx, p.logger)

	strat, err := p.Strategy(strategy)
	if err != nil {
		return entity.Result{}, err
	}

	if p.tracker != nil {
		if err := p.tracker.Start(ctx, entity.ExtractRun{
			ID:        runID,
			Strategy:  strat.Name(),
			Source:    src.Name(),
			Status:    string(constants.RunStatusRunning),
			StartedAt: start,
		}); err != nil {
			return entity.Result{}, err
		}
	}

	res, err := p.run(ctx, src, strat, runID, start)
	if err != nil {
		log.Error("pipeline.run.failed", "source", src.Name(), "strategy", strat.Name(), "err", err)
		if p.tracker != nil {
			// the caller's context may be what failed
			if ferr := p.tracker.Fail(context.WithoutCancel(ctx), runID, err.Error()); ferr != nil {
				log.Error("pipeline.run.fail_not_recorded", "err", ferr)
			}
		}
		return res, err
	}

	if p.tracker != nil {
		if err := p.tracker.Finish(ctx, res); err != nil {
			return res, err
		}
	}

	log.Info("pipeline.run.ok",
		"source", src.Name(),
		"strategy", res.Strategy,
		"documents", res.Documents,
		"records", len(res.Records),
		"dropped", res.Dropped,
		"ambiguous", res.Ambiguous,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (p *Processor) run(ctx context.Context, src source.TextSource, strat merge.Strategy, runID uuid.UUID, start time.Time) (entity.Result, error) {
	docs, err := src.List(ctx)
	if err != nil {
		return entity.Result{}, fmt.Errorf("list %s: %w", src.Name(), err)
	}
	if p.preclean {
		docs = Preclean(docs)
	}

	acc, err := merge.Run(ctx, docs, strat, merge.Options{Workers: p.workers, Logger: p.logger})
	if err != nil {
		return entity.Result{}, err
	}

	res := entity.Result{
		RunID:     runID,
		Strategy:  strat.Name(),
		Documents: acc.Documents,
		Records:   acc.Records,
		Streams:   acc.Streams,
		Dropped:   acc.Dropped,
		Ambiguous: acc.Ambiguous,
		StartedAt: start,
	}

	res.Duration = time.Since(start)
	for _, s := range p.sinks {
		if err := s.Write(ctx, res); err != nil {
			return res, fmt.Errorf("%w: %s: %w", common.ErrSink, s.Name(), err)
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Preclean returns copies of docs with OCR whitespace noise removed.
func Preclean(docs []entity.Document) []entity.Document {
	out := make([]entity.Document, len(docs))
	for i, d := range docs {
		d.Text = ocr.Normalize(d.Text)
		out[i] = d
	}
	return out
}
