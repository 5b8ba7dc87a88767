package administrator

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"newscraper/internal/pkg/config"
	"newscraper/internal/pkg/fetcher"
	"newscraper/internal/pkg/filter"
	"newscraper/internal/pkg/pipeline"
	"newscraper/internal/pkg/spider"
)

func detailPage(title, date, author string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head><body>
		<table><tr align="right">
			<td width="20%%" class="hui12_sj2">%s</td>
			<td align="center" width="22%%">%s</td>
		</tr></table>
		<img src="logo.png">
	</body></html>`, title, date, author)
}

func newCrawlServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/list.html", func(w http.ResponseWriter, r *http.Request) {
		// One relative link, one absolute link, and a repeat of the
		// first that the visited filter must swallow.
		fmt.Fprintf(w, `<html><body>
			<a class="font06" href="/a.html">A</a>
			<a class="font06" href="%s/b.html">B</a>
			<a class="font06" href="/a.html">A again</a>
		</body></html>`, server.URL)
	})
	mux.HandleFunc("/a.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage("  Article A  ", "2025-03-18", "Author A"))
	})
	mux.HandleFunc("/b.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage("Article B", "2025-03-19", "Author B"))
	})
	return server
}

func TestCrawlSessionEndToEnd(t *testing.T) {
	server := newCrawlServer(t)
	outDir := t.TempDir()
	dbPath := filepath.Join(outDir, "news.db")
	xlsxPath := filepath.Join(outDir, "news.xlsx")
	htmlDir := filepath.Join(outDir, "html_files")

	visited, err := filter.NewVisitedFilter("", 0, 1000, 0.01)
	require.NoError(t, err)

	archive, err := pipeline.NewArchiveSink(htmlDir)
	require.NoError(t, err)

	coordinator := pipeline.NewCoordinator(
		pipeline.NewNormalizer(),
		pipeline.NewSQLiteSink(dbPath),
		pipeline.NewExcelSink(xlsxPath),
		archive,
	)

	admin, err := NewAdministrator(Params{
		Fetcher: fetcher.New(config.FetchConfig{
			TimeoutSec:     5,
			MaxAttempts:    2,
			InitialDelayMs: 1,
			MaxDelayMs:     10,
			RequestsPerSec: 1000,
			BodyLimitKb:    64,
		}),
		Spider:      spider.New("a.font06"),
		Coordinator: coordinator,
		Visited:     visited,
		Seeds:       []string{server.URL + "/list.html"},
		Workers:     1,
	})
	require.NoError(t, err)

	require.NoError(t, admin.Run(context.Background()))

	// Relational store: exactly one row per distinct URL.
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM news`).Scan(&count))
	require.Equal(t, 2, count)

	var title, author string
	require.NoError(t, db.QueryRow(
		`SELECT title, author FROM news WHERE url = ?`, server.URL+"/a.html").
		Scan(&title, &author))
	require.Equal(t, "Article A", title, "fields reach the store trimmed")
	require.Equal(t, "Author A", author)

	// Tabular export: header plus one row per record, in crawl order.
	workbook, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows("新闻数据")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "Article A", rows[1][0])
	require.Equal(t, "Article B", rows[2][0])

	// Archival mirror: one rewritten file per record.
	entries, err := os.ReadDir(htmlDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	mirrored, err := os.ReadFile(filepath.Join(htmlDir, "Article A.html"))
	require.NoError(t, err)
	require.Contains(t, string(mirrored), server.URL+"/logo.png", "relative resources are rebased")
}

func TestCrawlSessionAbortsWhenRelationalStoreCannotOpen(t *testing.T) {
	server := newCrawlServer(t)
	outDir := t.TempDir()

	archive, err := pipeline.NewArchiveSink(filepath.Join(outDir, "html_files"))
	require.NoError(t, err)

	coordinator := pipeline.NewCoordinator(
		pipeline.NewNormalizer(),
		pipeline.NewSQLiteSink(filepath.Join(outDir, "missing", "news.db")),
		pipeline.NewExcelSink(filepath.Join(outDir, "news.xlsx")),
		archive,
	)

	admin, err := NewAdministrator(Params{
		Fetcher: fetcher.New(config.FetchConfig{
			TimeoutSec:     5,
			MaxAttempts:    1,
			RequestsPerSec: 1000,
			BodyLimitKb:    64,
		}),
		Spider:      spider.New("a.font06"),
		Coordinator: coordinator,
		Seeds:       []string{server.URL + "/list.html"},
		Workers:     1,
	})
	require.NoError(t, err)

	require.Error(t, admin.Run(context.Background()))
}

func TestCrawlSessionCancelledMidRun(t *testing.T) {
	// A session interrupted while workers are still handing records
	// over must neither crash nor skip the sinks' close hooks. Run the
	// session repeatedly with staggered cancellation points to catch
	// shutdown races.
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/list.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		for i := 0; i < 30; i++ {
			fmt.Fprintf(w, `<a class="font06" href="/d%d.html">D%d</a>`, i, i)
		}
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		fmt.Fprint(w, detailPage("Detail", "2025-03-18", "Author"))
	})

	for i := 0; i < 20; i++ {
		outDir := t.TempDir()
		xlsxPath := filepath.Join(outDir, "news.xlsx")

		archive, err := pipeline.NewArchiveSink(filepath.Join(outDir, "html_files"))
		require.NoError(t, err)

		coordinator := pipeline.NewCoordinator(
			pipeline.NewNormalizer(),
			pipeline.NewSQLiteSink(filepath.Join(outDir, "news.db")),
			pipeline.NewExcelSink(xlsxPath),
			archive,
		)

		visited, err := filter.NewVisitedFilter("", 0, 1000, 0.01)
		require.NoError(t, err)

		admin, err := NewAdministrator(Params{
			Fetcher: fetcher.New(config.FetchConfig{
				TimeoutSec:     5,
				MaxAttempts:    1,
				RequestsPerSec: 100000,
				BodyLimitKb:    64,
			}),
			Spider:      spider.New("a.font06"),
			Coordinator: coordinator,
			Visited:     visited,
			Seeds:       []string{server.URL + "/list.html"},
			Workers:     8,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		go func(delay time.Duration) {
			time.Sleep(delay)
			cancel()
		}(time.Duration(i) * time.Millisecond)

		require.NoError(t, admin.Run(ctx))
		cancel()

		// The close hooks ran: the export exists and is well-formed.
		workbook, err := excelize.OpenFile(xlsxPath)
		require.NoError(t, err)
		rows, err := workbook.GetRows("新闻数据")
		require.NoError(t, err)
		require.NotEmpty(t, rows, "header row survives an interrupted session")
		require.NoError(t, workbook.Close())
	}
}

func TestCrawlSessionFlushesSinksOnCancellation(t *testing.T) {
	server := newCrawlServer(t)
	outDir := t.TempDir()
	xlsxPath := filepath.Join(outDir, "news.xlsx")

	archive, err := pipeline.NewArchiveSink(filepath.Join(outDir, "html_files"))
	require.NoError(t, err)

	coordinator := pipeline.NewCoordinator(
		pipeline.NewNormalizer(),
		pipeline.NewSQLiteSink(filepath.Join(outDir, "news.db")),
		pipeline.NewExcelSink(xlsxPath),
		archive,
	)

	admin, err := NewAdministrator(Params{
		Fetcher: fetcher.New(config.FetchConfig{
			TimeoutSec:     5,
			MaxAttempts:    1,
			RequestsPerSec: 1000,
			BodyLimitKb:    64,
		}),
		Spider:      spider.New("a.font06"),
		Coordinator: coordinator,
		Seeds:       []string{server.URL + "/list.html"},
		Workers:     1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, admin.Run(ctx))

	// Even a session that never processed a record leaves a well-formed
	// export behind.
	workbook, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows("新闻数据")
	require.NoError(t, err)
	require.Len(t, rows, 1, "header row only")
}
