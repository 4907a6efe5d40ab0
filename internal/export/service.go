package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/video-insights/internal/table"
)

const (
	sheetName = "Analysis"
	// Excel rejects cells longer than this.
	maxCellChars = 32767
)

// Service renders tables as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Workbook builds a single-sheet workbook: bold frozen header, then one row per record.
func (s *Service) Workbook(t *table.Table) (*excelize.File, error) {
	f := excelize.NewFile()
	if index, _ := f.GetSheetIndex(sheetName); index == -1 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return nil, err
	}

	for i, h := range t.Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, bold)

		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetName, col, col, columnWidth(h))
	}

	for r, rec := range t.Records {
		row := r + 2
		for c, h := range t.Header {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			_ = f.SetCellValue(sheetName, cell, truncate(rec[h], maxCellChars))
		}
	}
	if len(t.Header) > 0 && len(t.Records) > 0 {
		first, _ := excelize.CoordinatesToCellName(1, 2)
		last, _ := excelize.CoordinatesToCellName(len(t.Header), len(t.Records)+1)
		_ = f.SetCellStyle(sheetName, first, last, wrap)
	}

	_ = f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	return f, nil
}

// WriteXLSX writes the table to path, replacing any previous workbook.
func (s *Service) WriteXLSX(t *table.Table, path string) error {
	start := time.Now()
	f, err := s.Workbook(t)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"path", path,
		"rows", len(t.Records),
		"columns", len(t.Header),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func columnWidth(header string) float64 {
	switch header {
	case "Filename", "Tags", "Needs Screenshots", "Screenshot Count":
		return 22
	default:
		return 48
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
