// Package reporting collects test outcomes and renders them to the console and to JUnit XML.
package reporting

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-unit/metrics"
	"github.com/ethereum-optimism/infra/op-unit/registry"
	"github.com/ethereum-optimism/infra/op-unit/types"
)

// Options configures console output
type Options struct {
	Name       string    // run name used as the JUnit root
	RunID      string    // run identifier used for metrics labels
	Out        io.Writer // console output, stdout when nil
	AboutToRun bool      // print every test before it starts
	Passed     bool      // print passed tests
	Skipped    bool      // print tests excluded by the run-list
	Outcome    bool      // print the per-suite results table
	NoColor    bool
	Log        log.Logger
}

// Counts aggregates outcomes for a suite or a whole run
type Counts struct {
	Size     int
	Passed   int
	Failed   int
	Errored  int
	Disabled int
	Duration time.Duration // sum of the durations of executed tests
}

// Unsuccessful returns the number of failed and errored tests
func (c Counts) Unsuccessful() int {
	return c.Failed + c.Errored
}

// Ran returns the number of tests that reached a verdict, disabled ones included
func (c Counts) Ran() int {
	return c.Unsuccessful() + c.Passed + c.Disabled
}

// Skipped returns the number of tests that were not run. A negative value means a test
// was reported twice, which is a bug in the caller, so it panics.
func (c Counts) Skipped() int {
	n := c.Size - c.Ran()
	if n < 0 {
		panic(fmt.Sprintf("negative skipped count: size %d, ran %d", c.Size, c.Ran()))
	}
	return n
}

func (c *Counts) add(status types.TestStatus, elapsed time.Duration) {
	switch status {
	case types.TestStatusPassed:
		c.Passed++
	case types.TestStatusFailed:
		c.Failed++
	case types.TestStatusErrored:
		c.Errored++
	case types.TestStatusDisabled:
		c.Disabled++
	}
	c.Duration += elapsed
}

// Reporter is the thread-safe sink for test outcomes. It owns the results table of a run,
// indexed by full id, and the per-suite and global counters. Every test may be reported at
// most once; a second report panics.
type Reporter struct {
	opts Options
	reg  *registry.Registry
	log  log.Logger

	mu      sync.Mutex
	results map[types.FullID]*types.TestResult
	suites  map[string]*Counts
	totals  Counts
	start   time.Time
	elapsed time.Duration

	outMu sync.Mutex
}

// New creates a reporter for every test in reg
func New(reg *registry.Registry, opts Options) *Reporter {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Log == nil {
		opts.Log = log.New()
	}
	if opts.Name == "" {
		opts.Name = "unit tests"
	}

	r := &Reporter{
		opts:    opts,
		reg:     reg,
		log:     opts.Log.New("component", "reporter"),
		results: make(map[types.FullID]*types.TestResult, reg.Len()),
		suites:  make(map[string]*Counts),
		totals:  Counts{Size: reg.Len()},
	}
	for _, s := range reg.Suites() {
		r.suites[s.Name()] = &Counts{Size: s.Size()}
		for _, tc := range s.Tests() {
			r.results[tc.ID()] = &types.TestResult{ID: tc.ID(), Status: types.TestStatusNotRun}
		}
	}
	return r
}

// Start marks the beginning of the run and prints how many tests are about to run
func (r *Reporter) Start() {
	r.mu.Lock()
	r.start = time.Now()
	r.mu.Unlock()

	r.write(fmt.Sprintf("%s %d test(s)\n", r.paint("running", colorRunning...), r.totals.Size))
}

// Finish records the wall-clock duration of the run
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.start.IsZero() {
		r.elapsed = time.Since(r.start)
	}
}

func (r *Reporter) AboutToRun(id types.FullID) {
	if !r.opts.AboutToRun {
		return
	}
	r.write(r.statusLine("run", colorRun, id))
}

func (r *Reporter) ReportPass(id types.FullID, elapsed time.Duration) {
	r.record(id, types.TestStatusPassed, elapsed, "")
	if r.opts.Passed {
		r.write(r.statusLine("passed", colorPassed, id))
	}
}

func (r *Reporter) ReportFailure(id types.FullID, elapsed time.Duration, message string) {
	r.record(id, types.TestStatusFailed, elapsed, message)
	r.write(r.failureLines("failed", id, message))
}

func (r *Reporter) ReportError(id types.FullID, elapsed time.Duration, message string) {
	r.record(id, types.TestStatusErrored, elapsed, message)
	r.write(r.failureLines("errored", id, message))
}

// ReportSkipped marks a test as deliberately not run. It keeps the "not run" status and
// is not counted in any bucket.
func (r *Reporter) ReportSkipped(id types.FullID, message string) {
	r.record(id, types.TestStatusNotRun, 0, message)
	if r.opts.Skipped {
		r.write(r.statusLine("skipped", colorSkipped, id))
	}
}

func (r *Reporter) ReportDisabled(id types.FullID) {
	r.record(id, types.TestStatusDisabled, 0, "")
	r.write(r.statusLine("disabled", colorDisabled, id))
}

func (r *Reporter) record(id types.FullID, status types.TestStatus, elapsed time.Duration, message string) {
	r.mu.Lock()
	res, ok := r.results[id]
	if !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("reporting unknown test %s", id))
	}
	if res.Reported {
		r.mu.Unlock()
		panic(fmt.Sprintf("test %s reported twice (%s, then %s)", id, res.Status, status))
	}
	res.Status = status
	res.Duration = elapsed
	res.Message = message
	res.Reported = true
	r.suites[id.Suite].add(status, elapsed)
	r.totals.add(status, elapsed)
	r.mu.Unlock()

	metrics.RecordTest(id.Suite, status, elapsed)
}

// Result returns a copy of the result recorded for id
func (r *Reporter) Result(id types.FullID) (types.TestResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	if !ok {
		return types.TestResult{}, false
	}
	return *res, true
}

// Suite returns the counters of one suite
func (r *Reporter) Suite(name string) (Counts, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.suites[name]
	if !ok {
		return Counts{}, false
	}
	return *c, true
}

// Totals returns the run-wide counters
func (r *Reporter) Totals() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals
}

func (r *Reporter) NumUnsuccessful() int { return r.Totals().Unsuccessful() }
func (r *Reporter) NumRan() int          { return r.Totals().Ran() }
func (r *Reporter) NumSkipped() int      { return r.Totals().Skipped() }

// IsFailed reports whether any test failed or errored. Disabled and skipped tests never
// affect the verdict.
func (r *Reporter) IsFailed() bool {
	t := r.Totals()
	return t.Failed != 0 || t.Errored != 0
}

// Elapsed returns the wall-clock duration between Start and Finish
func (r *Reporter) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// RecordMetrics exports the run totals to the metrics registry
func (r *Reporter) RecordMetrics() {
	t := r.Totals()
	result := "pass"
	if r.IsFailed() {
		result = "fail"
	}
	metrics.RecordRun(r.opts.RunID, result, t.Passed, t.Failed, t.Errored, t.Disabled, t.Skipped(), r.Elapsed())
}

// write emits one complete message with a single Write call
func (r *Reporter) write(msg string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if _, err := io.WriteString(r.opts.Out, msg); err != nil {
		r.log.Warn("Failed to write console output", "err", err)
	}
}
