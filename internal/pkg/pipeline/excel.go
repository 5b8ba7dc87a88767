package pipeline

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"newscraper/internal/pkg/types"
)

const sheetName = "新闻数据"

var sheetHeaders = []string{"标题", "发布日期", "作者/来源", "URL", "爬取时间"}

// ExcelSink appends every record as one worksheet row, in processing
// order and without deduplication. The workbook lives in memory and is
// written out once when the session closes.
type ExcelSink struct {
	path     string
	workbook *excelize.File
	row      int
}

func NewExcelSink(path string) *ExcelSink {
	return &ExcelSink{path: path}
}

func (s *ExcelSink) Name() string { return "excel" }

// Open creates the workbook with the header at row 1.
func (s *ExcelSink) Open(ctx context.Context) error {
	workbook := excelize.NewFile()
	if err := workbook.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name worksheet: %w", err)
	}
	for col, header := range sheetHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := workbook.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	s.workbook = workbook
	s.row = 1
	return nil
}

// Close saves the whole sheet to the configured file, overwriting any
// prior export of that name.
func (s *ExcelSink) Close(ctx context.Context) error {
	if s.workbook == nil {
		return nil
	}
	defer s.workbook.Close()
	if err := s.workbook.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", s.path, err)
	}
	return nil
}

// Process appends one row below the current cursor. The cursor only
// advances once the row is fully written, so a failed record does not
// leave a blank row behind.
func (s *ExcelSink) Process(ctx context.Context, record *types.Record) error {
	row := s.row + 1
	values := []string{
		types.String(record.Title),
		types.String(record.PublishDate),
		types.String(record.Author),
		record.URL,
		record.CreatedAt,
	}
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := s.workbook.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}
	s.row = row
	return nil
}
