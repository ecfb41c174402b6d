// Package utils converts between domain types and the structpb messages the
// gRPC service speaks.
package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// RecordToValue turns a record into a struct value keyed by field name.
// Absent fields stay absent.
func RecordToValue(r entity.Record) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(r))
	for k, v := range r {
		fields[string(k)] = structpb.NewStringValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// RecordsToList keeps record order.
func RecordsToList(records []entity.Record) *structpb.Value {
	vals := make([]*structpb.Value, 0, len(records))
	for _, r := range records {
		vals = append(vals, RecordToValue(r))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func countsToValue(m map[string]int) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(m))
	for k, n := range m {
		fields[k] = structpb.NewNumberValue(float64(n))
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// ResultToStruct summarizes a run result. Records are included only when
// withRecords is set.
func ResultToStruct(res entity.Result, withRecords bool) *structpb.Struct {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"run_id":       structpb.NewStringValue(res.RunID.String()),
		"strategy":     structpb.NewStringValue(res.Strategy),
		"documents":    structpb.NewNumberValue(float64(res.Documents)),
		"record_count": structpb.NewNumberValue(float64(len(res.Records))),
		"dropped":      countsToValue(res.Dropped),
		"ambiguous":    structpb.NewNumberValue(float64(res.Ambiguous)),
		"started_at":   structpb.NewStringValue(res.StartedAt.UTC().Format(time.RFC3339)),
		"duration_ms":  structpb.NewNumberValue(float64(res.Duration.Milliseconds())),
	}}
	if withRecords {
		out.Fields["records"] = RecordsToList(res.Records)
	}
	return out
}

// RunToStruct renders a persisted run.
func RunToStruct(run *entity.ExtractRun) *structpb.Struct {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"run_id":       structpb.NewStringValue(run.ID.String()),
		"strategy":     structpb.NewStringValue(run.Strategy),
		"source":       structpb.NewStringValue(run.Source),
		"status":       structpb.NewStringValue(run.Status),
		"documents":    structpb.NewNumberValue(float64(run.Documents)),
		"record_count": structpb.NewNumberValue(float64(run.Records)),
		"dropped":      countsToValue(run.DroppedReasons),
		"ambiguous":    structpb.NewNumberValue(float64(run.Ambiguous)),
		"started_at":   structpb.NewStringValue(run.StartedAt.UTC().Format(time.RFC3339)),
	}}
	if run.FinishedAt != nil {
		out.Fields["finished_at"] = structpb.NewStringValue(run.FinishedAt.UTC().Format(time.RFC3339))
	}
	if run.ErrorMessage != nil {
		out.Fields["error"] = structpb.NewStringValue(*run.ErrorMessage)
	}
	return out
}

// DocumentsFromStruct reads the "documents" list of a request. Each entry
// needs a name and a text; the list order is the document order.
func DocumentsFromStruct(s *structpb.Struct) ([]entity.Document, error) {
	list := s.GetFields()["documents"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: documents: expected a list", common.ErrInvalidInput)
	}
	docs := make([]entity.Document, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		d := v.GetStructValue()
		if d == nil {
			return nil, fmt.Errorf("%w: documents[%d]: expected an object", common.ErrInvalidInput, i)
		}
		name := strings.TrimSpace(StringField(d, "name"))
		if name == "" {
			name = fmt.Sprintf("document-%d", i+1)
		}
		docs = append(docs, entity.Document{
			Name:     name,
			OrderKey: i,
			Page:     IntField(d, "page"),
			Format:   constants.TEXT,
			Text:     StringField(d, "text"),
		})
	}
	return docs, nil
}

// StringField returns s[key] when it is a string, "" otherwise.
func StringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// BoolField returns s[key] when it is a bool, false otherwise.
func BoolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// IntField truncates a numeric s[key]; anything else is 0.
func IntField(s *structpb.Struct, key string) int {
	n := s.GetFields()[key].GetNumberValue()
	if math.IsNaN(n) || n < math.MinInt32 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}
