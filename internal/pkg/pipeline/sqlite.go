package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"newscraper/internal/pkg/types"
)

// SQLiteSink persists records into a SQLite table keyed by URL. A
// record whose URL is already stored is skipped, never overwritten.
type SQLiteSink struct {
	path string
	db   *sql.DB
}

func NewSQLiteSink(path string) *SQLiteSink {
	return &SQLiteSink{path: path}
}

func (s *SQLiteSink) Name() string { return "sqlite" }

// Open creates the database file and the news table if needed. An open
// failure here is fatal to the whole session: nothing can be persisted.
func (s *SQLiteSink) Open(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", s.path, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		publish_date TEXT,
		author TEXT,
		url TEXT UNIQUE,
		created_at TEXT
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create news table: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteSink) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Process inserts the record, ignoring the row when the URL is already
// present. Each insert commits on its own; durability wins over batch
// throughput. Absent fields are stored as empty strings.
func (s *SQLiteSink) Process(ctx context.Context, record *types.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO news (title, publish_date, author, url, created_at) VALUES (?, ?, ?, ?, ?)`,
		types.String(record.Title),
		types.String(record.PublishDate),
		types.String(record.Author),
		record.URL,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", record.URL, err)
	}
	return nil
}
