// Package spider turns fetched pages into follow-up URLs and raw
// article records. It does no cleaning; the pipeline owns that.
package spider

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"newscraper/internal/pkg/types"
	"newscraper/internal/pkg/utils"
)

// XPath expressions matching the news site's detail-page layout: the
// publish date sits in a right-aligned row's 20%-width styled cell, the
// author/source in the centered 22%-width cell of the same row.
const (
	titleXPath       = `//title/text()`
	publishDateXPath = `//tr[@align="right"]/td[@width="20%" and @class="hui12_sj2"]/text()`
	authorXPath      = `//tr[@align="right"]/td[@align="center" and @width="22%"]/text()`
)

// Spider extracts links from listing pages and records from detail pages.
type Spider struct {
	linkSelector string
}

// New creates a spider whose listing anchors match the given CSS selector.
func New(linkSelector string) *Spider {
	return &Spider{linkSelector: linkSelector}
}

// ExtractLinks returns the absolute detail-page URLs referenced by a
// listing page, in document order. Anchors with an empty or missing
// href produce nothing; relative hrefs are resolved against the
// listing page's own URL.
func (s *Spider) ExtractLinks(page types.FetchResult) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page %s: %w", page.URL, err)
	}

	var links []string
	doc.Find(s.linkSelector).Each(func(_ int, anchor *goquery.Selection) {
		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(href, "http") {
			links = append(links, href)
			return
		}
		resolved, err := utils.ResolveURL(page.URL, href)
		if err != nil {
			return
		}
		links = append(links, resolved)
	})
	return links, nil
}

// ExtractRecord builds exactly one raw record from a detail page. A
// selector that matches nothing leaves its field nil; that is not an
// error. The raw body travels with the record for the archive stage.
func (s *Spider) ExtractRecord(page types.FetchResult) (*types.Record, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page %s: %w", page.URL, err)
	}

	return &types.Record{
		Title:       firstText(doc, titleXPath),
		PublishDate: firstText(doc, publishDateXPath),
		Author:      firstText(doc, authorXPath),
		URL:         page.URL,
		PageContent: page.Body,
	}, nil
}

// firstText returns the first node matched by the expression, or nil
// when there is no match.
func firstText(doc *html.Node, expr string) *string {
	node := htmlquery.FindOne(doc, expr)
	if node == nil {
		return nil
	}
	text := htmlquery.InnerText(node)
	return &text
}
