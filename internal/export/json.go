package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// Dump is the nested JSON layout: assembled records plus the raw per-field
// streams they were built from.
type Dump struct {
	ArrestArray  []map[string]string `json:"arrest_array"`
	ArrestFields map[string][]string `json:"arrest_fields"`
}

// dumpSchema pins the layout consumers of the JSON export rely on.
var dumpSchema = map[string]any{
	"$schema":  "https://json-schema.org/draft/2020-12/schema",
	"type":     "object",
	"required": []string{"arrest_array", "arrest_fields"},
	"properties": map[string]any{
		"arrest_array": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"propertyNames":        map[string]any{"enum": constants.AsStringSlice()},
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
		"arrest_fields": map[string]any{
			"type":                 "object",
			"propertyNames":        map[string]any{"enum": constants.AsStringSlice()},
			"additionalProperties": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	},
	"additionalProperties": false,
}

// NewDump converts a result into the nested layout. Nil slices become empty
// ones so the JSON never carries null.
func NewDump(res entity.Result) Dump {
	d := Dump{
		ArrestArray:  make([]map[string]string, 0, len(res.Records)),
		ArrestFields: make(map[string][]string, len(res.Streams)),
	}
	for _, r := range res.Records {
		d.ArrestArray = append(d.ArrestArray, r.StringMap())
	}
	for k, vs := range res.Streams {
		if vs == nil {
			vs = []string{}
		}
		d.ArrestFields[string(k)] = vs
	}
	return d
}

// MarshalDump encodes and schema-checks the nested layout.
func MarshalDump(res entity.Result) ([]byte, error) {
	b, err := json.MarshalIndent(NewDump(res), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal dump: %w", err)
	}
	if err := ValidateJSONAgainstSchema(dumpSchema, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: json does not match schema: %v", common.ErrValidation, err)
	}
	return nil
}

// JSONSink writes the nested dump to a file.
type JSONSink struct {
	path   string
	logger *slog.Logger
}

func NewJSONSink(path string, logger *slog.Logger) *JSONSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONSink{path: path, logger: logger}
}

func (s *JSONSink) Name() string { return "json:" + s.path }

func (s *JSONSink) Write(ctx context.Context, res entity.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	b, err := MarshalDump(res)
	if err != nil {
		return err
	}
	if err := writeFile(s.path, b); err != nil {
		return err
	}
	s.logger.Info("export.json.ok",
		"path", s.path,
		"records", len(res.Records),
		"fields", len(res.Streams),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
