// Package pipeline runs each scraped record through an ordered chain of
// processing stages, each owning its own external resource.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newscraper/internal/pkg/types"
)

var (
	ErrNotOpen       = errors.New("pipeline is not open")
	ErrAlreadyOpen   = errors.New("pipeline is already open")
	ErrRecordDropped = errors.New("record dropped by stage")
)

// Stage is one step of the item pipeline. Open and Close bracket the
// whole session; Process runs once per record and may mutate it in
// place. A Process error drops the record from later stages.
type Stage interface {
	Name() string
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Process(ctx context.Context, record *types.Record) error
}

// bestEffort marks stages whose Process failures are logged and
// discarded instead of dropping the record.
type bestEffort interface {
	BestEffort() bool
}

// State of a pipeline session.
type State int

const (
	StateNotStarted State = iota
	StateOpen
	StateClosed
)

// Coordinator drives records through its stages strictly in order. It
// is not safe for concurrent use: the sinks share no locks, so callers
// must feed it one record at a time.
type Coordinator struct {
	stages    []Stage
	state     State
	processed int
	dropped   int
}

// NewCoordinator builds a coordinator over the given stages, which run
// in argument order for every record.
func NewCoordinator(stages ...Stage) *Coordinator {
	return &Coordinator{stages: stages}
}

// Open runs every stage's open hook in stage order. If one fails, the
// stages already opened are closed again and the session cannot start.
func (c *Coordinator) Open(ctx context.Context) error {
	if c.state != StateNotStarted {
		return ErrAlreadyOpen
	}
	for i, stage := range c.stages {
		if err := stage.Open(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if closeErr := c.stages[j].Close(ctx); closeErr != nil {
					slog.Error("failed to close stage after open failure",
						"stage", c.stages[j].Name(), "err", closeErr)
				}
			}
			return fmt.Errorf("failed to open stage %s: %w", stage.Name(), err)
		}
	}
	c.state = StateOpen
	return nil
}

// Process runs one record through all stages in order. A stage error
// drops the record from the remaining stages and is reported wrapped in
// ErrRecordDropped, except for best-effort stages whose errors are
// logged and discarded.
func (c *Coordinator) Process(ctx context.Context, record *types.Record) error {
	if c.state != StateOpen {
		return ErrNotOpen
	}
	for _, stage := range c.stages {
		err := stage.Process(ctx, record)
		if err == nil {
			continue
		}
		if be, ok := stage.(bestEffort); ok && be.BestEffort() {
			slog.Warn("best-effort stage failed",
				"stage", stage.Name(), "url", record.URL, "err", err)
			continue
		}
		c.dropped++
		slog.Error("stage failed, dropping record",
			"stage", stage.Name(), "url", record.URL, "err", err)
		return fmt.Errorf("%w: stage %s: %v", ErrRecordDropped, stage.Name(), err)
	}
	c.processed++
	return nil
}

// Close runs every stage's close hook in stage order, even when earlier
// hooks fail, and reports the combined error.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.state != StateOpen {
		return ErrNotOpen
	}
	c.state = StateClosed

	var errs []error
	for _, stage := range c.stages {
		if err := stage.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stage %s: %w", stage.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns how many records completed all stages and how many were
// dropped by a failing stage.
func (c *Coordinator) Stats() (processed, dropped int) {
	return c.processed, c.dropped
}
