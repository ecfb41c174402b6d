package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// WriteCSV writes a header of field names and one row per record, in order.
// Absent fields become empty cells.
func WriteCSV(w io.Writer, records []entity.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(constants.AsStringSlice()); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVSink writes records to a CSV file.
type CSVSink struct {
	path   string
	logger *slog.Logger
}

func NewCSVSink(path string, logger *slog.Logger) *CSVSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSink{path: path, logger: logger}
}

func (s *CSVSink) Name() string { return "csv:" + s.path }

func (s *CSVSink) Write(ctx context.Context, res entity.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, res.Records); err != nil {
		return fmt.Errorf("csv encode: %w", err)
	}
	if err := writeFile(s.path, buf.Bytes()); err != nil {
		return err
	}
	s.logger.Info("export.csv.ok",
		"path", s.path,
		"rows", len(res.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
