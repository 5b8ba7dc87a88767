package queue

import (
	"errors"
	"sync"
)

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// Kind says what a queued page is expected to contain.
type Kind int

const (
	// KindListing pages enumerate links to detail pages.
	KindListing Kind = iota
	// KindDetail pages carry one article's fields.
	KindDetail
)

// Request is one pending page fetch.
type Request struct {
	URL  string
	Kind Kind
}

// Queue is a bounded, thread-safe FIFO of crawl requests.
type Queue struct {
	mu       sync.Mutex
	capacity int
	q        []Request
}

// Creates an empty queue with a specified capacity.
func CreateQueue(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity should be greater than 0")
	}
	return &Queue{
		capacity: capacity,
		q:        make([]Request, 0, capacity),
	}, nil
}

// Inserts the request into the queue.
func (q *Queue) Insert(item Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.q) < q.capacity {
		q.q = append(q.q, item)
		return nil
	}
	return ErrQueueFull
}

// Removes the oldest request from the queue.
func (q *Queue) Remove() (Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.q) > 0 {
		item := q.q[0]
		q.q = q.q[1:]
		return item, nil
	}
	return Request{}, ErrQueueEmpty
}

// Returns the number of requests in the queue.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.q)
}
