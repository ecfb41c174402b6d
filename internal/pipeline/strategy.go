package pipeline

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/core/blocks"
	"github.com/joseph-ayodele/arrestlog/internal/core/fieldstream"
	"github.com/joseph-ayodele/arrestlog/internal/core/locate"
)

// BlocksConfig maps the extract section onto the segmenter's markers.
// Empty values are filled from blocks.DefaultConfig by the segmenter.
func BlocksConfig(cfg common.ExtractConfig) blocks.Config {
	return blocks.Config{
		Anchor:         cfg.Anchor,
		DateMarker:     cfg.DateMarker,
		LocationMarker: cfg.LocationMarker,
		LocationHint:   cfg.LocationHint,
		Codes:          cfg.Codes,
	}
}

// FieldSpecs turns the configured label table into field specs. An empty
// table means fieldstream.DefaultSpecs.
func FieldSpecs(cfg common.ExtractConfig) ([]fieldstream.FieldSpec, error) {
	if len(cfg.Fields) == 0 {
		return fieldstream.DefaultSpecs(), nil
	}
	specs := make([]fieldstream.FieldSpec, 0, len(cfg.Fields))
	for i, f := range cfg.Fields {
		name, ok := constants.Canonicalize(f.Name)
		if !ok {
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("fields[%d]: unknown field %q", i, f.Name), common.ErrInvalidInput)
		}
		kind, ok := locate.ParseKind(f.Locator)
		if !ok {
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("fields[%d]: unknown locator %q", i, f.Locator), common.ErrInvalidInput)
		}
		if strings.TrimSpace(f.Label) == "" {
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("fields[%d]: label is required", i), common.ErrInvalidInput)
		}
		specs = append(specs, fieldstream.FieldSpec{Name: name, Label: f.Label, Locator: kind})
	}
	return specs, nil
}
