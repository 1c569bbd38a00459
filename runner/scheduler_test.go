package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-unit/check"
	"github.com/ethereum-optimism/infra/op-unit/registry"
	"github.com/ethereum-optimism/infra/op-unit/types"
)

// recordingReporter keeps every outcome and panics when a test is reported twice.
type recordingReporter struct {
	mu      sync.Mutex
	started map[types.FullID]int
	results map[types.FullID]types.TestResult
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		started: make(map[types.FullID]int),
		results: make(map[types.FullID]types.TestResult),
	}
}

func (r *recordingReporter) record(id types.FullID, status types.TestStatus, elapsed time.Duration, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[id]; ok {
		panic(fmt.Sprintf("%s reported twice", id))
	}
	r.results[id] = types.TestResult{ID: id, Status: status, Duration: elapsed, Message: msg, Reported: true}
}

func (r *recordingReporter) AboutToRun(id types.FullID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[id]++
}

func (r *recordingReporter) ReportPass(id types.FullID, elapsed time.Duration) {
	r.record(id, types.TestStatusPassed, elapsed, "")
}

func (r *recordingReporter) ReportFailure(id types.FullID, elapsed time.Duration, msg string) {
	r.record(id, types.TestStatusFailed, elapsed, msg)
}

func (r *recordingReporter) ReportError(id types.FullID, elapsed time.Duration, msg string) {
	r.record(id, types.TestStatusErrored, elapsed, msg)
}

func (r *recordingReporter) ReportSkipped(id types.FullID, msg string) {
	r.record(id, types.TestStatusNotRun, 0, msg)
}

func (r *recordingReporter) ReportDisabled(id types.FullID) {
	r.record(id, types.TestStatusDisabled, 0, "")
}

func (r *recordingReporter) status(suite, test string) types.TestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[types.FullID{Suite: suite, Test: test}].Status
}

func (r *recordingReporter) result(suite, test string) types.TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[types.FullID{Suite: suite, Test: test}]
}

func (r *recordingReporter) count(status types.TestStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, res := range r.results {
		if res.Status == status {
			n++
		}
	}
	return n
}

type selectorFunc func(suite, test string) bool

func (f selectorFunc) IsSelected(suite, test string) bool { return f(suite, test) }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(testLogger())
}

func addSuite(t *testing.T, reg *registry.Registry, name string) *registry.Suite {
	t.Helper()
	s, err := reg.Suite(name)
	require.NoError(t, err)
	return s
}

func runScheduler(t *testing.T, cfg Config) *recordingReporter {
	t.Helper()
	rep := newRecordingReporter()
	cfg.Reporter = rep
	cfg.Log = testLogger()
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	return rep
}

func TestNewSchedulerValidatesConfig(t *testing.T) {
	_, err := NewScheduler(Config{Reporter: newRecordingReporter()})
	require.Error(t, err)
	_, err = NewScheduler(Config{Registry: newRegistry(t)})
	require.Error(t, err)
	_, err = NewScheduler(Config{Registry: newRegistry(t), Reporter: newRecordingReporter(), Concurrency: -1})
	require.Error(t, err)
}

func TestPassAndFailSequential(t *testing.T) {
	reg := newRegistry(t)
	math := addSuite(t, reg, "math")
	require.NoError(t, math.Add("add_passes", 0, func() error {
		check.Equal(4, 2+2)
		return nil
	}))
	require.NoError(t, math.Add("add_fails", 0, func() error {
		check.Equal(5, 2+2)
		return nil
	}))

	rep := runScheduler(t, Config{Registry: reg, Concurrency: 1})

	assert.Equal(t, types.TestStatusPassed, rep.status("math", "add_passes"))
	failed := rep.result("math", "add_fails")
	assert.Equal(t, types.TestStatusFailed, failed.Status)
	assert.Contains(t, failed.Message, "scheduler_test.go:")
	assert.Contains(t, failed.Message, "Not equal")
	assert.Equal(t, 1, rep.count(types.TestStatusPassed))
	assert.Equal(t, 1, rep.count(types.TestStatusFailed))
}

func TestParametrizedTestsAllPass(t *testing.T) {
	reg := newRegistry(t)
	x := addSuite(t, reg, "x")
	require.NoError(t, registry.AddParametrized(x, "name", 0, []int{1, 2, 3}, func(v int) error {
		check.True(v > 0)
		return nil
	}))

	rep := runScheduler(t, Config{Registry: reg, Concurrency: 3})
	for i := 0; i < 3; i++ {
		assert.Equal(t, types.TestStatusPassed, rep.status("x", fmt.Sprintf("name[%d]", i)))
	}
}

func TestDisabledTests(t *testing.T) {
	var calls atomic.Int32
	build := func(t *testing.T) *registry.Registry {
		reg := newRegistry(t)
		s := addSuite(t, reg, "d")
		require.NoError(t, s.AddDisabled("would_fail", 0, func() error {
			calls.Add(1)
			check.Fail("should not have run")
			return nil
		}))
		require.NoError(t, s.AddDisabled("no_body", 0, nil))
		return reg
	}

	t.Run("normal run", func(t *testing.T) {
		calls.Store(0)
		rep := runScheduler(t, Config{Registry: build(t), Concurrency: 1})
		assert.Equal(t, types.TestStatusDisabled, rep.status("d", "would_fail"))
		assert.Equal(t, types.TestStatusDisabled, rep.status("d", "no_body"))
		assert.Zero(t, calls.Load())
		assert.Zero(t, rep.count(types.TestStatusFailed))
	})

	t.Run("run disabled", func(t *testing.T) {
		calls.Store(0)
		rep := runScheduler(t, Config{Registry: build(t), Concurrency: 1, RunDisabled: true})
		assert.Equal(t, types.TestStatusFailed, rep.status("d", "would_fail"))
		assert.Equal(t, types.TestStatusDisabled, rep.status("d", "no_body"), "nothing to execute")
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestErrorsAndPanics(t *testing.T) {
	reg := newRegistry(t)
	s := addSuite(t, reg, "e")
	require.NoError(t, s.Add("panics", 0, func() error { panic("boom") }))
	require.NoError(t, s.Add("returns_error", 0, func() error { return errors.New("connection refused") }))
	require.NoError(t, s.Add("returns_failure", 0, func() error { return check.Errorf("got %d", 3) }))
	require.NoError(t, s.Add("panics_with_error", 0, func() error { panic(fmt.Errorf("wrapped: %w", context.Canceled)) }))

	rep := runScheduler(t, Config{Registry: reg, Concurrency: Unbounded})

	panicked := rep.result("e", "panics")
	assert.Equal(t, types.TestStatusErrored, panicked.Status)
	assert.Contains(t, panicked.Message, "boom")

	returned := rep.result("e", "returns_error")
	assert.Equal(t, types.TestStatusErrored, returned.Status)
	assert.Equal(t, "connection refused", returned.Message)

	failure := rep.result("e", "returns_failure")
	assert.Equal(t, types.TestStatusFailed, failure.Status)
	assert.Contains(t, failure.Message, "got 3")

	assert.Equal(t, types.TestStatusErrored, rep.status("e", "panics_with_error"))
}

func TestEveryTestReportedOnce(t *testing.T) {
	reg := newRegistry(t)
	total := 0
	for i := 0; i < 5; i++ {
		s := addSuite(t, reg, fmt.Sprintf("suite%d", i))
		for j := 0; j < 40; j++ {
			var proc types.Procedure = func() error { return nil }
			switch j % 4 {
			case 1:
				proc = func() error { return check.Errorf("nope") }
			case 2:
				proc = func() error { panic("nope") }
			}
			name := fmt.Sprintf("t%d", j)
			if j%10 == 3 {
				require.NoError(t, s.AddDisabled(name, 0, proc))
			} else {
				require.NoError(t, s.Add(name, 0, proc))
			}
			total++
		}
	}
	skipEvery := selectorFunc(func(suite, test string) bool { return suite != "suite4" })

	for _, concurrency := range []int{1, 4, Unbounded} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			rep := runScheduler(t, Config{Registry: reg, Selector: skipEvery, Concurrency: concurrency})
			rep.mu.Lock()
			defer rep.mu.Unlock()
			assert.Len(t, rep.results, total)
			for id, n := range rep.started {
				assert.Equal(t, 1, n, "%s started more than once", id)
			}
		})
	}
}

func TestNoParallelTestsRunAlone(t *testing.T) {
	const parallelTests = 12
	var (
		active   atomic.Int32
		finished atomic.Int32
		serial   atomic.Int32
	)

	reg := newRegistry(t)
	// Registered first so that dispatch order alone would run them early.
	exclusive := addSuite(t, reg, "exclusive")
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, exclusive.Add(name, types.FlagNoParallel, func() error {
			if n := active.Add(1); n != 1 {
				return fmt.Errorf("%d tests running alongside", n-1)
			}
			defer active.Add(-1)
			if n := finished.Load(); n != parallelTests {
				return fmt.Errorf("only %d parallel tests finished", n)
			}
			serial.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		}))
	}
	par := addSuite(t, reg, "parallel")
	for i := 0; i < parallelTests; i++ {
		require.NoError(t, par.Add(fmt.Sprintf("p%d", i), 0, func() error {
			active.Add(1)
			defer active.Add(-1)
			time.Sleep(2 * time.Millisecond)
			finished.Add(1)
			return nil
		}))
	}

	rep := runScheduler(t, Config{Registry: reg, Concurrency: 4})
	for _, name := range []string{"a", "b", "c"} {
		res := rep.result("exclusive", name)
		assert.Equal(t, types.TestStatusPassed, res.Status, res.Message)
	}
	assert.Equal(t, int32(3), serial.Load())
	assert.Equal(t, parallelTests, rep.count(types.TestStatusPassed)-3)
}

func TestNoParallelNotDeferredWithSingleRunner(t *testing.T) {
	var order []string
	reg := newRegistry(t)
	s := addSuite(t, reg, "s")
	require.NoError(t, s.Add("a", types.FlagNoParallel, func() error { order = append(order, "a"); return nil }))
	require.NoError(t, s.Add("b", 0, func() error { order = append(order, "b"); return nil }))

	runScheduler(t, Config{Registry: reg, Concurrency: 1})
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestSelectorSkipsTests(t *testing.T) {
	reg := newRegistry(t)
	var ran atomic.Int32
	body := func() error { ran.Add(1); return nil }
	a := addSuite(t, reg, "suiteA")
	require.NoError(t, a.Add("test1", 0, body))
	require.NoError(t, a.Add("test2", 0, body))
	b := addSuite(t, reg, "suiteB")
	require.NoError(t, b.Add("alpha", 0, body))

	only := selectorFunc(func(suite, test string) bool {
		return (suite == "suiteA" && test == "test1") || suite == "suiteB"
	})
	rep := runScheduler(t, Config{Registry: reg, Selector: only, Concurrency: 2})

	assert.Equal(t, types.TestStatusPassed, rep.status("suiteA", "test1"))
	assert.Equal(t, types.TestStatusNotRun, rep.status("suiteA", "test2"))
	assert.Equal(t, types.TestStatusPassed, rep.status("suiteB", "alpha"))
	assert.Equal(t, int32(2), ran.Load())
}

func TestCancelledRunStopsDispatching(t *testing.T) {
	reg := newRegistry(t)
	s := addSuite(t, reg, "slow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Add("first", 0, func() error {
		cancel()
		return nil
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(fmt.Sprintf("later%d", i), 0, func() error { return nil }))
	}

	rep := newRecordingReporter()
	sched, err := NewScheduler(Config{Registry: reg, Reporter: rep, Concurrency: 1, Log: testLogger()})
	require.NoError(t, err)

	err = sched.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.TestStatusPassed, rep.status("slow", "first"), "in-flight tests complete")
	assert.Less(t, len(rep.results), 6)
	assert.Empty(t, sched.InFlight())
}

func TestDebugModeDoesNotRecover(t *testing.T) {
	reg := newRegistry(t)
	s := addSuite(t, reg, "dbg")
	require.NoError(t, s.Add("explodes", 0, func() error { panic("boom") }))
	tc, ok := reg.TestCase(types.FullID{Suite: "dbg", Test: "explodes"})
	require.True(t, ok)

	sched, err := NewScheduler(Config{Registry: reg, Reporter: newRecordingReporter(), Concurrency: 1, Debug: true, Log: testLogger()})
	require.NoError(t, err)
	assert.PanicsWithValue(t, "boom", func() { sched.execute(context.Background(), tc) })
}

func TestClassify(t *testing.T) {
	failure := check.Errorf("expected 5")
	tests := []struct {
		name    string
		err     error
		status  types.TestStatus
		message string
	}{
		{name: "nil", err: nil, status: types.TestStatusPassed},
		{name: "plain error", err: errors.New("io"), status: types.TestStatusErrored, message: "io"},
		{name: "panic value", err: &PanicError{Value: 42}, status: types.TestStatusErrored, message: "panic: 42"},
		{name: "wrapped failure", err: fmt.Errorf("step 2: %w", failure), status: types.TestStatusFailed, message: "step 2: " + failure.Error()},
		{name: "panicked failure", err: &PanicError{Value: failure}, status: types.TestStatusFailed, message: failure.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, msg)
		})
	}
}
