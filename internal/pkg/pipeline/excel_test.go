package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"newscraper/internal/pkg/types"
)

func TestExcelSinkAppendsRowsInProcessingOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.xlsx")
	sink := NewExcelSink(path)
	ctx := context.Background()

	require.NoError(t, sink.Open(ctx))

	for i := 1; i <= 3; i++ {
		record := &types.Record{
			Title:     strPtr(fmt.Sprintf("Article %d", i)),
			URL:       fmt.Sprintf("http://example.com/%d.html", i),
			CreatedAt: "2025-03-18 09:00:00",
		}
		require.NoError(t, sink.Process(ctx, record))
	}

	// Duplicate URL still appends: the sheet does not deduplicate.
	dup := &types.Record{
		Title:     strPtr("Article 1 again"),
		URL:       "http://example.com/1.html",
		CreatedAt: "2025-03-18 09:00:00",
	}
	require.NoError(t, sink.Process(ctx, dup))
	require.NoError(t, sink.Close(ctx))

	workbook, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5, "header plus four data rows")

	require.Equal(t, []string{"标题", "发布日期", "作者/来源", "URL", "爬取时间"}, rows[0][:5])
	require.Equal(t, "Article 1", rows[1][0])
	require.Equal(t, "Article 2", rows[2][0])
	require.Equal(t, "Article 3", rows[3][0])
	require.Equal(t, "Article 1 again", rows[4][0])
}

func TestExcelSinkDefaultsAbsentFieldsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.xlsx")
	sink := NewExcelSink(path)
	ctx := context.Background()

	require.NoError(t, sink.Open(ctx))
	require.NoError(t, sink.Process(ctx, &types.Record{
		URL:       "http://example.com/a.html",
		CreatedAt: "2025-03-18 09:00:00",
	}))
	require.NoError(t, sink.Close(ctx))

	workbook, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer workbook.Close()

	title, err := workbook.GetCellValue(sheetName, "A2")
	require.NoError(t, err)
	require.Empty(t, title)

	url, err := workbook.GetCellValue(sheetName, "D2")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/a.html", url)
}

func TestExcelSinkKeepsCursorWhenWriteFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.xlsx")
	sink := NewExcelSink(path)
	ctx := context.Background()

	require.NoError(t, sink.Open(ctx))

	// Make the next write fail by taking the worksheet away.
	_, err := sink.workbook.NewSheet("scratch")
	require.NoError(t, err)
	require.NoError(t, sink.workbook.DeleteSheet(sheetName))

	failed := &types.Record{
		Title:     strPtr("lost"),
		URL:       "http://example.com/lost.html",
		CreatedAt: "2025-03-18 09:00:00",
	}
	require.Error(t, sink.Process(ctx, failed))

	// With the worksheet back, the next record lands directly below
	// the header instead of leaving a blank row for the failed one.
	_, err = sink.workbook.NewSheet(sheetName)
	require.NoError(t, err)
	require.NoError(t, sink.Process(ctx, &types.Record{
		Title:     strPtr("kept"),
		URL:       "http://example.com/kept.html",
		CreatedAt: "2025-03-18 09:00:00",
	}))

	title, err := sink.workbook.GetCellValue(sheetName, "A2")
	require.NoError(t, err)
	require.Equal(t, "kept", title)

	next, err := sink.workbook.GetCellValue(sheetName, "A3")
	require.NoError(t, err)
	require.Empty(t, next)

	require.NoError(t, sink.Close(ctx))
}

func TestExcelSinkOverwritesPriorExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.xlsx")
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		sink := NewExcelSink(path)
		require.NoError(t, sink.Open(ctx))
		require.NoError(t, sink.Process(ctx, &types.Record{
			Title:     strPtr(fmt.Sprintf("Run %d", run)),
			URL:       "http://example.com/a.html",
			CreatedAt: "2025-03-18 09:00:00",
		}))
		require.NoError(t, sink.Close(ctx))
	}

	workbook, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2, "a fresh export replaces the old file")
	require.Equal(t, "Run 1", rows[1][0])
}
