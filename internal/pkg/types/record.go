package types

import "time"

// Record is one scraped news article on its way through the item pipeline.
// Title, PublishDate and Author stay nil when the page had no matching
// element; the sinks default nil to the empty string at write time.
type Record struct {
	Title         *string `json:"title"`
	PublishDate   *string `json:"publish_date"`
	Author        *string `json:"author"`
	URL           string  `json:"url"`
	CreatedAt     string  `json:"created_at"`
	HTMLSavedPath string  `json:"html_saved_path,omitempty"`

	// PageContent carries the raw response body so the archive stage can
	// rewrite and save it. Only that stage reads it.
	PageContent []byte `json:"-"`
}

// String returns the value of an optional field, or "" when it is absent.
func String(field *string) string {
	if field == nil {
		return ""
	}
	return *field
}

// FetchResult is one fetched page as handed over by the fetcher.
type FetchResult struct {
	URL        string
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}
