package filter

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// VisitedFilter wraps a Bloom filter with thread-safe access. It keeps a
// detail page that is linked from several listing pages from being
// fetched more than once per session.
type VisitedFilter struct {
	filter      *bloom.BloomFilter
	mutex       sync.Mutex
	savePath    string
	saveEvery   int
	saveCounter int
}

// NewVisitedFilter creates a filter, loading prior state from savePath
// when one exists. An empty savePath keeps the filter in memory only.
func NewVisitedFilter(savePath string, saveEvery, capacity int, fpRate float64) (*VisitedFilter, error) {
	manager := &VisitedFilter{
		savePath:  savePath,
		saveEvery: saveEvery,
	}

	var filter *bloom.BloomFilter
	if savePath != "" {
		loaded, err := loadBloomFilter(savePath)
		if err != nil {
			return nil, fmt.Errorf("error while loading bloom filter: %v", err)
		}
		filter = loaded
	}

	// No filter found, create a new one
	if filter == nil {
		filter = bloom.NewWithEstimates(uint(capacity), fpRate)
	}

	manager.filter = filter

	return manager, nil
}

// Loads a Bloom filter from disk.
func loadBloomFilter(path string) (*bloom.BloomFilter, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) { // File does not exist, just return nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error while opening bloom filter file on disk: %v", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("error while reading bloom filter from disk: %v", err)
	}

	return filter, nil
}

// Save persists the Bloom filter to disk.
func (f *VisitedFilter) Save() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.saveLocked()
}

func (f *VisitedFilter) saveLocked() error {
	if f.savePath == "" {
		return nil
	}
	file, err := os.Create(f.savePath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := f.filter.WriteTo(writer); err != nil {
		return err
	}
	return writer.Flush()
}

// Checks if a URL has been visited.
func (f *VisitedFilter) IsVisited(url string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.filter.TestString(url)
}

// Checks if a URL has been visited and marks it as visited.
func (f *VisitedFilter) CheckAndMark(url string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.filter.TestString(url) {
		return true
	}

	f.filter.AddString(url)
	f.saveCounter++

	if f.saveEvery > 0 && f.saveCounter >= f.saveEvery {
		f.saveCounter = 0
		if err := f.saveLocked(); err != nil {
			slog.Warn("failed to save visited filter", "path", f.savePath, "err", err)
		}
	}

	return false
}
