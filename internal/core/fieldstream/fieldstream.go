// Package fieldstream reconstructs records by collecting every value of each
// field across a whole document and zipping the lists by position.
//
// Position is the only link between fields: the i-th value of every stream is
// assumed to belong to the i-th physical record. Logs whose fields are printed
// out of order produce shifted rows; nothing here can detect that.
package fieldstream

import (
	"iter"
	"log/slog"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/core/locate"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// FieldSpec binds a field to the label printed for it and the way its value is found.
type FieldSpec struct {
	Name    constants.FieldName
	Label   string
	Locator locate.Kind
}

// DefaultSpecs is the label table of the BART arrest logs.
func DefaultSpecs() []FieldSpec {
	return []FieldSpec{
		{Name: constants.Location, Label: "Primary Location", Locator: locate.NextLine},
		{Name: constants.CaseNumber, Label: "Case_Number", Locator: locate.NextLine},
		{Name: constants.DateOfArrest, Label: "Date_Arrest", Locator: locate.NextLine},
		{Name: constants.Sex, Label: "Sex:", Locator: locate.SameLine},
		{Name: constants.Race, Label: "Race:", Locator: locate.SameLine},
	}
}

// Extract builds one stream per spec. Specs are scanned independently.
// Next-line fields always get an entry, so a missing one empties the zip;
// a same-line field whose label never occurs is left out and does not.
func Extract(text string, specs []FieldSpec) entity.FieldStreams {
	streams := make(entity.FieldStreams, len(specs))
	for _, spec := range specs {
		values := locate.All(spec.Locator, text, spec.Label)
		if len(values) == 0 && spec.Locator == locate.SameLine {
			continue
		}
		// later specs for the same field extend it
		streams[spec.Name] = append(streams[spec.Name], values...)
	}
	return streams
}

// Assemble yields one record per position up to the shortest stream. Longer
// streams are truncated without notice and no value is normalized.
func Assemble(streams entity.FieldStreams) iter.Seq[entity.Record] {
	return func(yield func(entity.Record) bool) {
		n := streams.Len()
		for i := 0; i < n; i++ {
			rec := make(entity.Record, len(streams))
			for name, values := range streams {
				rec[name] = values[i]
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Strategy runs Extract then Assemble on each document.
type Strategy struct {
	specs  []FieldSpec
	logger *slog.Logger
}

func NewStrategy(specs []FieldSpec, logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	return &Strategy{specs: specs, logger: logger}
}

func (s *Strategy) Name() string { return constants.StrategyFields }

// Reconstruct returns both the raw streams and the zipped records for doc.
func (s *Strategy) Reconstruct(doc entity.Document) entity.DocumentResult {
	streams := Extract(doc.Text, s.specs)
	var records []entity.Record
	for rec := range Assemble(streams) {
		records = append(records, rec)
	}

	// uneven streams are the visible symptom of misalignment
	shortest, longest := streams.Len(), 0
	for _, vs := range streams {
		longest = max(longest, len(vs))
	}
	if longest != shortest {
		s.logger.Debug("fieldstream.uneven_streams",
			"doc", doc.Name, "shortest", shortest, "longest", longest)
	}

	return entity.DocumentResult{
		Document: doc.Name,
		Records:  records,
		Streams:  streams,
	}
}
