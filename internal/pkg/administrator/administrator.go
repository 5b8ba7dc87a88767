// Package administrator owns one crawl session: it drives the fetch
// workers, routes listing pages through link extraction and detail
// pages through record extraction, and feeds every record to the item
// pipeline one at a time.
package administrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"newscraper/internal/pkg/fetcher"
	"newscraper/internal/pkg/filter"
	"newscraper/internal/pkg/pipeline"
	"newscraper/internal/pkg/queue"
	"newscraper/internal/pkg/spider"
	"newscraper/internal/pkg/types"
	"newscraper/internal/pkg/utils"
)

const (
	queueCapacity   = 5000
	queueRetryDelay = 100 * time.Millisecond
	queuePollDelay  = 50 * time.Millisecond
	recordBuffer    = 64
)

// Params wires a crawl session together.
type Params struct {
	Fetcher       *fetcher.Fetcher
	Spider        *spider.Spider
	Coordinator   *pipeline.Coordinator
	Visited       *filter.VisitedFilter
	Seeds         []string
	AllowedDomain string
	Workers       int
}

type Administrator struct {
	fetcher       *fetcher.Fetcher
	spider        *spider.Spider
	coordinator   *pipeline.Coordinator
	visited       *filter.VisitedFilter
	seeds         []string
	allowedDomain string
	workers       int

	urlQueue *queue.Queue
	records  chan *types.Record

	// pending counts requests that are queued or in flight, including
	// the child requests a listing page will enqueue. The session ends
	// when it drains.
	pending sync.WaitGroup
	wg      sync.WaitGroup
}

func NewAdministrator(p Params) (*Administrator, error) {
	q, err := queue.CreateQueue(queueCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create request queue: %w", err)
	}

	return &Administrator{
		fetcher:       p.Fetcher,
		spider:        p.Spider,
		coordinator:   p.Coordinator,
		visited:       p.Visited,
		seeds:         p.Seeds,
		allowedDomain: p.AllowedDomain,
		workers:       p.Workers,
		urlQueue:      q,
		records:       make(chan *types.Record, recordBuffer),
	}, nil
}

// Run executes the crawl session: it opens the pipeline, works through
// every seed listing page and the detail pages they link to, and closes
// the pipeline on every exit path so the sinks still flush when the
// session is interrupted. Only a pipeline open failure is fatal.
func (a *Administrator) Run(ctx context.Context) (err error) {
	// The pipeline lifecycle is immune to cancellation: the sinks must
	// still flush and close when the session is interrupted.
	lifecycleCtx := context.WithoutCancel(ctx)

	if err := a.coordinator.Open(lifecycleCtx); err != nil {
		return err
	}
	defer func() {
		if closeErr := a.coordinator.Close(lifecycleCtx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		if a.visited != nil {
			if saveErr := a.visited.Save(); saveErr != nil {
				slog.Warn("failed to save visited filter", "err", saveErr)
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, seed := range a.seeds {
		a.enqueue(ctx, queue.Request{URL: seed, Kind: queue.KindListing})
	}

	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.fetchWorker(ctx, i)
	}

	// Close the record stream once every queued request has been fully
	// handled, or once the session is cancelled. The workers are the
	// only senders, so the stream must not close before the last one
	// has exited.
	go func() {
		drained := make(chan struct{})
		go func() {
			a.pending.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
		}
		cancel()
		a.wg.Wait()

		// Release requests still queued when the session stopped so
		// the drain watcher can finish.
		for {
			if _, err := a.urlQueue.Remove(); err != nil {
				break
			}
			a.pending.Done()
		}

		close(a.records)
	}()

	for record := range a.records {
		// Stage failures are logged by the coordinator; a dropped
		// record must not end the session.
		_ = a.coordinator.Process(lifecycleCtx, record)
	}

	processed, dropped := a.coordinator.Stats()
	slog.Info("crawl session finished", "processed", processed, "dropped", dropped)

	if ctxErr := context.Cause(ctx); ctxErr != nil && !errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	return nil
}

// enqueue inserts a request, retrying while the queue is full. The
// pending count covers the request from here until it is handled.
func (a *Administrator) enqueue(ctx context.Context, req queue.Request) {
	a.pending.Add(1)
	for {
		if err := a.urlQueue.Insert(req); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			a.pending.Done()
			return
		case <-time.After(queueRetryDelay):
		}
	}
}

func (a *Administrator) fetchWorker(ctx context.Context, id int) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := a.urlQueue.Remove()
		if err != nil {
			// Queue is empty, wait a bit before trying again.
			select {
			case <-ctx.Done():
				return
			case <-time.After(queuePollDelay):
			}
			continue
		}

		a.handle(ctx, req, id)
		a.pending.Done()
	}
}

func (a *Administrator) handle(ctx context.Context, req queue.Request, workerID int) {
	result, err := a.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		slog.Warn("fetch failed", "worker", workerID, "url", req.URL, "err", err)
		return
	}

	switch req.Kind {
	case queue.KindListing:
		a.handleListing(ctx, result)
	case queue.KindDetail:
		a.handleDetail(ctx, result)
	}
}

func (a *Administrator) handleListing(ctx context.Context, result types.FetchResult) {
	links, err := a.spider.ExtractLinks(result)
	if err != nil {
		slog.Warn("failed to extract links", "url", result.URL, "err", err)
		return
	}

	for _, link := range links {
		if !a.allowed(link) {
			slog.Debug("skipping off-domain link", "url", link)
			continue
		}
		if a.visited != nil && a.visited.CheckAndMark(link) {
			continue
		}
		a.enqueue(ctx, queue.Request{URL: link, Kind: queue.KindDetail})
	}
}

func (a *Administrator) handleDetail(ctx context.Context, result types.FetchResult) {
	record, err := a.spider.ExtractRecord(result)
	if err != nil {
		slog.Warn("failed to extract record", "url", result.URL, "err", err)
		return
	}

	select {
	case a.records <- record:
	case <-ctx.Done():
	}
}

func (a *Administrator) allowed(link string) bool {
	if a.allowedDomain == "" {
		return true
	}
	domain, err := utils.GetDomainFromURL(link)
	if err != nil {
		return false
	}
	return domain == a.allowedDomain || strings.HasSuffix(domain, "."+a.allowedDomain)
}
