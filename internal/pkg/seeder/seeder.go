package seeder

import (
	"fmt"
	"strings"
)

// Seeder returns the URLs a crawl session starts from.
type Seeder interface {
	URLs() []string
}

// ListingSeeder enumerates a paginated news listing: the base listing
// page itself plus its numbered siblings index_1.html .. index_N.html.
// The sequence is fixed at configuration time, not discovered.
type ListingSeeder struct {
	baseURL   string
	pageCount int
}

func NewListingSeeder(baseURL string, pageCount int) *ListingSeeder {
	return &ListingSeeder{
		baseURL:   baseURL,
		pageCount: pageCount,
	}
}

// URLs returns the seed listing URLs in crawl order.
func (s *ListingSeeder) URLs() []string {
	urls := make([]string, 0, s.pageCount+1)
	urls = append(urls, s.baseURL)

	base := s.baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	for i := 1; i <= s.pageCount; i++ {
		urls = append(urls, fmt.Sprintf("%sindex_%d.html", base, i))
	}
	return urls
}
