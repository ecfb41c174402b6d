// Package blocks reconstructs records by cutting a document into one block per
// record at a recurring anchor label and extracting each field inside its
// block.
package blocks

import (
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/core/normalize"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// DropReason says why a block produced no record.
type DropReason string

const (
	DropEmptyBlock             DropReason = "empty_block"
	DropMissingDateArrest      DropReason = "missing_date_arrest"
	DropMissingPrimaryLocation DropReason = "missing_primary_location"
)

// Config holds the literal markers of the log layout.
type Config struct {
	Anchor         string   // starts every record, e.g. "Case Number"
	DateMarker     string   // required line, e.g. "Date Arrest"
	LocationMarker string   // required line; the location is printed below it
	LocationHint   string   // substring of an address line, used when the line below the marker has no letters
	Codes          []string // statute code tokens marking charge lines
}

// DefaultConfig matches the Berkeley PD arrest logs.
func DefaultConfig() Config {
	return Config{
		Anchor:         "Case Number",
		DateMarker:     "Date Arrest",
		LocationMarker: "Primary Location",
		LocationHint:   "CA",
		Codes:          constants.StatuteCodes,
	}
}

// Split cuts text at every anchor occurrence. Text before the first anchor is
// never a block and a trailing empty segment is discarded, so K anchors
// followed by content give K blocks and text without the anchor gives none.
func Split(text, anchor string) []string {
	if anchor == "" {
		return nil
	}
	parts := strings.Split(text, anchor)
	if len(parts) < 2 {
		return nil
	}
	blocks := parts[1:]
	if blocks[len(blocks)-1] == "" {
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}

// Lines splits a block into lines and drops the single empty line left on
// either side by the anchor split.
func Lines(block string) []string {
	lines := strings.Split(block, "\n")
	if len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Segmenter applies Config to documents.
type Segmenter struct {
	cfg    Config
	logger *slog.Logger
}

func NewSegmenter(cfg Config, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Anchor == "" {
		cfg.Anchor = def.Anchor
	}
	if cfg.DateMarker == "" {
		cfg.DateMarker = def.DateMarker
	}
	if cfg.LocationMarker == "" {
		cfg.LocationMarker = def.LocationMarker
	}
	if cfg.LocationHint == "" {
		cfg.LocationHint = def.LocationHint
	}
	if len(cfg.Codes) == 0 {
		cfg.Codes = def.Codes
	}
	return &Segmenter{cfg: cfg, logger: logger}
}

func (s *Segmenter) Name() string { return constants.StrategyBlocks }

// Parsed is the outcome of one block.
type Parsed struct {
	Record    entity.Record
	Dropped   DropReason // "" when Record is valid
	Ambiguous bool       // several location candidates, first kept
	Locations []string   // the candidates when Ambiguous
}

// ParseBlock extracts one record from a block.
func (s *Segmenter) ParseBlock(block string) Parsed {
	lines := Lines(block)
	if len(lines) == 0 {
		return Parsed{Dropped: DropEmptyBlock}
	}
	if indexOf(lines, s.cfg.DateMarker) < 0 {
		return Parsed{Dropped: DropMissingDateArrest}
	}
	locIdx := indexOf(lines, s.cfg.LocationMarker)
	if locIdx < 0 {
		return Parsed{Dropped: DropMissingPrimaryLocation}
	}

	out := Parsed{Record: entity.Record{constants.CaseNumber: lines[0]}}

	var location string
	if locIdx+1 < len(lines) {
		location = lines[locIdx+1]
	}
	if !normalize.HasLetter(location) {
		// OCR did not place the address right under its label
		var candidates []string
		for _, line := range lines {
			if strings.Contains(line, s.cfg.LocationHint) {
				candidates = append(candidates, line)
			}
		}
		if len(candidates) > 1 {
			out.Ambiguous = true
			out.Locations = candidates
		}
		if len(candidates) > 0 {
			location = candidates[0]
		}
	}
	if location != "" {
		out.Record[constants.Location] = location
	}

	for _, rule := range normalize.Rules() {
		if v, ok := rule.Find(lines); ok {
			out.Record[rule.Field] = v
		}
	}

	if crimes := normalize.JoinCrimes(lines, s.cfg.Codes); crimes != "" {
		out.Record[constants.Crimes] = crimes
	}
	return out
}

// Segment returns the records of every complete block in document order.
func (s *Segmenter) Segment(text string) []entity.Record {
	return s.Reconstruct(entity.Document{Text: text}).Records
}

// Reconstruct segments doc and reports dropped and ambiguous blocks.
func (s *Segmenter) Reconstruct(doc entity.Document) entity.DocumentResult {
	res := entity.DocumentResult{Document: doc.Name}
	for i, block := range Split(doc.Text, s.cfg.Anchor) {
		p := s.ParseBlock(block)
		if p.Dropped != "" {
			if res.Dropped == nil {
				res.Dropped = make(map[string]int)
			}
			res.Dropped[string(p.Dropped)]++
			s.logger.Debug("blocks.dropped", "doc", doc.Name, "block", i, "reason", string(p.Dropped))
			continue
		}
		if p.Ambiguous {
			res.Ambiguous++
			s.logger.Warn("blocks.multiple_locations",
				"doc", doc.Name, "block", i,
				"case_number", p.Record[constants.CaseNumber],
				"candidates", p.Locations)
		}
		res.Records = append(res.Records, p.Record)
	}
	res.Streams = columns(res.Records)
	return res
}

// columns lists each field's values in record order, skipping records where
// the field is absent.
func columns(records []entity.Record) entity.FieldStreams {
	if len(records) == 0 {
		return nil
	}
	streams := make(entity.FieldStreams)
	for _, rec := range records {
		for _, f := range constants.Columns() {
			if v, ok := rec[f]; ok {
				streams[f] = append(streams[f], v)
			}
		}
	}
	return streams
}

func indexOf(lines []string, marker string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) == marker {
			return i
		}
	}
	return -1
}
