package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

var ErrCrawlingDisallowed = errors.New("crawling disallowed by robots.txt")

const (
	maxCrawlDelay  = 5 * time.Second
	robotsCacheTTL = 24 * time.Hour
)

type robotsData struct {
	group         *robotstxt.Group
	crawlDelay    time.Duration
	lastAccess    time.Time
	robotsFetched time.Time
	mu            sync.Mutex
}

// robotsGate checks robots.txt permission per domain and enforces the
// advertised Crawl-delay.
type robotsGate struct {
	client *http.Client
	cache  map[string]*robotsData
	mu     sync.Mutex
}

func newRobotsGate(client *http.Client) *robotsGate {
	return &robotsGate{
		client: client,
		cache:  make(map[string]*robotsData),
	}
}

// Checks if crawling is permitted for the given URL
// and enforces the Crawl-delay specified in robots.txt.
func (g *robotsGate) waitForPermission(ctx context.Context, targetURL string) error {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return err
	}
	domain := parsedURL.Hostname()

	g.mu.Lock()
	rData, exists := g.cache[domain]
	if !exists {
		rData = &robotsData{}
		g.cache[domain] = rData
	}
	g.mu.Unlock()

	rData.mu.Lock()
	defer rData.mu.Unlock()

	// Refresh robots.txt if needed
	if time.Since(rData.robotsFetched) > robotsCacheTTL || rData.group == nil {
		if err := g.fetchRobotsData(ctx, parsedURL, rData); err != nil {
			return err
		}
	}

	// Check if crawling is permitted
	if rData.group != nil && !rData.group.Test(parsedURL.Path) {
		return ErrCrawlingDisallowed
	}

	// Enforce crawl delay
	now := time.Now()
	elapsed := now.Sub(rData.lastAccess)
	waitTime := rData.crawlDelay - elapsed
	if waitTime > 0 {
		if waitTime > rData.crawlDelay {
			// In case of clock adjustments or anomalies
			waitTime = rData.crawlDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
		rData.lastAccess = rData.lastAccess.Add(rData.crawlDelay)
	} else {
		rData.lastAccess = now
	}

	return nil
}

// Fetches and parses the robots.txt file for the domain.
// It updates the robotsData with the parsed information.
func (g *robotsGate) fetchRobotsData(ctx context.Context, parsedURL *url.URL, rData *robotsData) error {
	robotsURL := parsedURL.Scheme + "://" + parsedURL.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", randomUserAgent())

	resp, err := g.client.Do(req)
	if err != nil {
		// Assume allow all (group stays nil to record that no robots.txt was found)
		rData.group = nil
		rData.crawlDelay = 0
		rData.robotsFetched = time.Now()
		return nil
	}
	defer resp.Body.Close()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		// Assume allow all
		rData.group = nil
		rData.crawlDelay = 0
		rData.robotsFetched = time.Now()
		return nil
	}

	group := robots.FindGroup(randomUserAgent())
	if group == nil {
		group = robots.FindGroup("*")
	}
	var crawlDelay time.Duration
	if group != nil && group.CrawlDelay >= 0 {
		crawlDelay = group.CrawlDelay
	}
	if crawlDelay > maxCrawlDelay {
		crawlDelay = maxCrawlDelay
	}
	rData.group = group
	rData.crawlDelay = crawlDelay
	rData.robotsFetched = time.Now()

	return nil
}
