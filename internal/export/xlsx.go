package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

const (
	arrestsSheet = "Arrests"
	summarySheet = "Summary"
)

var headers = map[constants.FieldName]string{
	constants.CaseNumber:   "Case Number",
	constants.DateOfArrest: "Date of Arrest",
	constants.Sex:          "Sex",
	constants.Race:         "Race",
	constants.DateOfBirth:  "DOB",
	constants.Location:     "Location",
	constants.Crimes:       "Crimes",
}

// BuildXLSX renders the records on an "Arrests" sheet and the run counters on
// a "Summary" sheet.
func BuildXLSX(res entity.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default "Sheet1" becomes the arrests sheet
	if err := f.SetSheetName(f.GetSheetName(0), arrestsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(arrestsSheet)
	f.SetActiveSheet(activeIndex)

	for i, c := range constants.Columns() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(arrestsSheet, cell, headers[c])
	}

	row := 2
	for _, r := range res.Records {
		for i, v := range r.Row() {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			// strings keep leading zeros and slashes
			_ = f.SetCellStr(arrestsSheet, cell, v)
		}
		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(arrestsSheet, "A", "A", 14) // case number
	_ = f.SetColWidth(arrestsSheet, "B", "B", 18) // date of arrest
	_ = f.SetColWidth(arrestsSheet, "C", "D", 6)  // sex, race
	_ = f.SetColWidth(arrestsSheet, "E", "E", 12) // dob
	_ = f.SetColWidth(arrestsSheet, "F", "F", 40) // location
	_ = f.SetColWidth(arrestsSheet, "G", "G", 60) // crimes
	_ = f.SetPanes(arrestsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	summary := [][2]any{
		{"Run ID", res.RunID.String()},
		{"Strategy", res.Strategy},
		{"Documents", res.Documents},
		{"Records", len(res.Records)},
		{"Ambiguous locations", res.Ambiguous},
	}
	reasons := make([]string, 0, len(res.Dropped))
	for k := range res.Dropped {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	for _, k := range reasons {
		summary = append(summary, [2]any{"Dropped: " + k, res.Dropped[k]})
	}
	for i, kv := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 36)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSXSink writes records to an Excel workbook.
type XLSXSink struct {
	path   string
	logger *slog.Logger
}

func NewXLSXSink(path string, logger *slog.Logger) *XLSXSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXSink{path: path, logger: logger}
}

func (s *XLSXSink) Name() string { return "xlsx:" + s.path }

func (s *XLSXSink) Write(ctx context.Context, res entity.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	b, err := BuildXLSX(res)
	if err != nil {
		return err
	}
	if err := writeFile(s.path, b); err != nil {
		return err
	}
	s.logger.Info("export.xlsx.ok",
		"path", s.path,
		"run_id", res.RunID.String(),
		"rows", len(res.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
