package pipeline

import (
	"context"
	"strings"
	"time"

	"newscraper/internal/pkg/types"
)

const createdAtLayout = "2006-01-02 15:04:05"

// Normalizer trims the record's string fields and stamps the crawl
// time. It is stateless and holds no external resource. Cleaning is
// deliberately conservative: whitespace only, no date or author
// canonicalization.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

func (n *Normalizer) Name() string { return "normalizer" }

func (n *Normalizer) Open(ctx context.Context) error { return nil }

func (n *Normalizer) Close(ctx context.Context) error { return nil }

// Process trims each present field in place. Absent fields stay
// absent; they are not turned into empty strings.
func (n *Normalizer) Process(ctx context.Context, record *types.Record) error {
	trim(record.Title)
	trim(record.PublishDate)
	trim(record.Author)
	record.CreatedAt = n.now().Format(createdAtLayout)
	return nil
}

func trim(field *string) {
	if field != nil {
		*field = strings.TrimSpace(*field)
	}
}
