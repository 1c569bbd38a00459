package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-unit/registry"
	"github.com/ethereum-optimism/infra/op-unit/types"
)

// Reporter receives every outcome the scheduler produces. It is called concurrently from
// runner goroutines and the scheduling goroutine.
type Reporter interface {
	AboutToRun(id types.FullID)
	ReportPass(id types.FullID, elapsed time.Duration)
	ReportFailure(id types.FullID, elapsed time.Duration, message string)
	ReportError(id types.FullID, elapsed time.Duration, message string)
	ReportSkipped(id types.FullID, message string)
	ReportDisabled(id types.FullID)
}

// Selector decides which registered tests take part in a run
type Selector interface {
	IsSelected(suite, test string) bool
}

// Config holds configuration for creating a new scheduler
type Config struct {
	Registry    *registry.Registry
	Selector    Selector // nil selects every test
	Reporter    Reporter
	Concurrency int  // maximum number of runners, Unbounded for no cap
	RunDisabled bool // execute disabled tests that still have a procedure
	Debug       bool // let panics from test procedures crash the process
	Log         log.Logger
}

type state int

const (
	stateDispatching state = iota
	stateDraining
	stateDone
)

func (s state) String() string {
	switch s {
	case stateDispatching:
		return "dispatching"
	case stateDraining:
		return "draining"
	default:
		return "done"
	}
}

type action int

const (
	actionRun action = iota
	actionSkip
	actionDisable
	actionDefer
)

// Scheduler walks the registry and runs every selected test on a worker pool. All
// dispatching and bookkeeping happens on the goroutine that calls Run; runners only
// execute tests and hand a completion callback back through the completion queue.
type Scheduler struct {
	registry    *registry.Registry
	selector    Selector
	reporter    Reporter
	concurrency int
	runDisabled bool
	debug       bool
	log         log.Logger
	tracer      trace.Tracer

	completions *completionQueue

	mu       sync.Mutex
	inflight map[types.FullID]time.Time
	running  bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("invalid concurrency %d", cfg.Concurrency)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	cfg.Log.Debug("NewScheduler()", "concurrency", cfg.Concurrency, "runDisabled", cfg.RunDisabled,
		"debug", cfg.Debug, "tests", cfg.Registry.Len())

	return &Scheduler{
		registry:    cfg.Registry,
		selector:    cfg.Selector,
		reporter:    cfg.Reporter,
		concurrency: cfg.Concurrency,
		runDisabled: cfg.RunDisabled,
		debug:       cfg.Debug,
		log:         cfg.Log.New("component", "scheduler"),
		tracer:      otel.Tracer("test scheduler"),
		completions: newCompletionQueue(),
		inflight:    make(map[types.FullID]time.Time),
	}, nil
}

// Run executes every registered test once and reports each outcome. Parallel tests go
// through the pool first; tests flagged no_parallel run afterwards, one at a time, on the
// calling goroutine. When ctx is cancelled no further tests are dispatched, in-flight
// tests are waited for, and the context error is returned. Tests that were never reached
// stay unreported.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, span := s.tracer.Start(ctx, "run")
	defer span.End()
	start := time.Now()

	pool := NewPool(s.concurrency, s.log)
	defer func() {
		if err := pool.Close(); err != nil {
			s.log.Error("Error stopping runners", "err", err)
		}
	}()

	var deferred []*registry.TestCase
	it := s.registry.Iterator()
	st := stateDispatching

	for st != stateDone {
		if st == stateDispatching {
			if ctx.Err() != nil {
				s.log.Warn("Run interrupted, waiting for in-flight tests", "err", ctx.Err())
				st = stateDraining
				continue
			}
			if !it.Valid() {
				st = stateDraining
				continue
			}

			tc := it.Current()
			switch s.classify(tc) {
			case actionSkip:
				s.reporter.ReportSkipped(tc.ID(), "not selected")
				it.Next()
				continue
			case actionDisable:
				s.reporter.ReportDisabled(tc.ID())
				it.Next()
				continue
			case actionDefer:
				s.log.Debug("Deferring no-parallel test", "test", tc.ID().String())
				deferred = append(deferred, tc)
				it.Next()
				continue
			}

			if r := pool.Occupy(); r != nil {
				s.dispatch(ctx, pool, r, tc)
				it.Next()
				continue
			}
			// Pool saturated: the current test stays pending until a runner is freed.
		} else if pool.NoActiveRunners() {
			st = stateDone
			continue
		}

		// In-flight tests are always waited for, even after cancellation.
		waitCtx := ctx
		if st == stateDraining {
			waitCtx = context.WithoutCancel(ctx)
		}
		done, err := s.completions.pop(waitCtx)
		if err != nil {
			continue
		}
		done()
	}

	if err := ctx.Err(); err != nil {
		span.SetAttributes(attribute.Bool("interrupted", true))
		return err
	}

	if len(deferred) > 0 {
		s.log.Debug("Running no-parallel tests", "count", len(deferred))
	}
	for _, tc := range deferred {
		if err := ctx.Err(); err != nil {
			span.SetAttributes(attribute.Bool("interrupted", true))
			return err
		}
		s.execute(ctx, tc)
	}

	s.log.Debug("Run finished", "duration", time.Since(start), "runners", pool.Size())
	return nil
}

func (s *Scheduler) classify(tc *registry.TestCase) action {
	if s.selector != nil && !s.selector.IsSelected(tc.Suite(), tc.Name()) {
		return actionSkip
	}
	if tc.Procedure() == nil || (tc.Disabled() && !s.runDisabled) {
		return actionDisable
	}
	if tc.NoParallel() && s.concurrency != 1 {
		return actionDefer
	}
	return actionRun
}

// dispatch hands one test to an occupied runner. The runner gives itself back to the pool
// through the completion queue, so Free only ever runs on the scheduling goroutine.
func (s *Scheduler) dispatch(ctx context.Context, pool *Pool, r *Runner, tc *registry.TestCase) {
	s.log.Debug("Dispatching test", "test", tc.ID().String(), "runner", r.ID())
	r.Enqueue(func() {
		s.execute(ctx, tc)
		s.completions.push(func() { pool.Free(r) })
	})
}

// InFlight returns the tests currently executing, sorted by full id
func (s *Scheduler) InFlight() []types.FullID {
	s.mu.Lock()
	ids := make([]types.FullID, 0, len(s.inflight))
	for id := range s.inflight {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

func (s *Scheduler) markStarted(id types.FullID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id] = time.Now()
}

func (s *Scheduler) markFinished(id types.FullID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}
