// Package unit is the entry point of a test binary: it builds the registry from the
// registered suites, selects the tests to run, runs them and reports the outcome.
package unit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-unit/exitcodes"
	"github.com/ethereum-optimism/infra/op-unit/metrics"
	"github.com/ethereum-optimism/infra/op-unit/registry"
	"github.com/ethereum-optimism/infra/op-unit/reporting"
	"github.com/ethereum-optimism/infra/op-unit/runlist"
	"github.com/ethereum-optimism/infra/op-unit/runner"
	"github.com/ethereum-optimism/infra/op-unit/service"
	"github.com/ethereum-optimism/infra/op-unit/types"
)

// tester implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*tester)(nil)

// tester runs every registered test once and then asks the application to close.
type tester struct {
	config   *Config
	inits    []registry.Initializer
	fixture  func() (func(), error)
	abort    func(inflight []types.FullID)
	reporter *reporting.Reporter

	running  atomic.Bool
	closeApp context.CancelCauseFunc
}

func newTester(config *Config, inits []registry.Initializer, closeApp context.CancelCauseFunc) (*tester, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("logger is required")
	}
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.Stdin == nil {
		config.Stdin = os.Stdin
	}

	t := &tester{
		config:   config,
		inits:    inits,
		closeApp: closeApp,
	}
	t.abort = func(inflight []types.FullID) {
		config.Log.Error("Aborting run", "timeout", config.Timeout, "inFlight", len(inflight))
		os.Exit(exitcodes.RuntimeErr)
	}
	return t, nil
}

// Start runs the tests and requests shutdown once they completed successfully.
// Start implements the cliapp.Lifecycle interface.
func (t *tester) Start(ctx context.Context) error {
	t.running.Store(true)

	if err := t.run(ctx); err != nil {
		if IsTestFailureError(err) {
			t.config.Log.Warn("Test run completed with failures", "err", err)
		}
		return err
	}

	if t.closeApp != nil {
		go t.closeApp(nil)
	}
	return nil
}

// Stop implements the cliapp.Lifecycle interface. A running test cannot be interrupted;
// cancelling the context passed to Start stops further dispatching instead.
func (t *tester) Stop(_ context.Context) error {
	if t.running.Swap(false) {
		t.config.Log.Debug("Tester stopped")
	}
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (t *tester) Stopped() bool {
	return !t.running.Load()
}

func (t *tester) run(ctx context.Context) error {
	cfg := t.config
	reg, err := registry.Build(cfg.Log, t.inits...)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to register tests: %w", err))
	}

	if cfg.ListTests {
		if err := reporting.PrintTestList(cfg.Out, reg); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to list tests: %w", err))
		}
		return nil
	}

	selector, err := t.selector(reg)
	if err != nil {
		return NewRuntimeError(err)
	}

	if reg.Len() == 0 {
		if _, err := io.WriteString(cfg.Out, "no tests to run\n"); err != nil {
			return NewRuntimeError(err)
		}
		return nil
	}

	if cfg.Metrics.Enabled {
		server := service.New(cfg.Log)
		addr := net.JoinHostPort(cfg.Metrics.ListenAddr, strconv.Itoa(cfg.Metrics.ListenPort))
		if err := server.Start(addr); err != nil {
			return NewRuntimeError(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				cfg.Log.Warn("Failed to stop metrics server", "err", err)
			}
		}()
	}

	// Initializers may install the global fixture, so it is looked up after Build.
	fixture := t.fixture
	if fixture == nil {
		fixture = registry.GlobalFixture()
	}
	if fixture != nil {
		teardown, err := fixture()
		if err != nil {
			return NewRuntimeError(fmt.Errorf("global fixture setup failed: %w", err))
		}
		if teardown != nil {
			defer teardown()
		}
	}

	runID := uuid.New().String()
	cfg.Log.Info("Running tests", "run_id", runID, "tests", reg.Len(), "concurrency", cfg.Concurrency, "debug", cfg.DebugMode())

	t.reporter = reporting.New(reg, reporting.Options{
		Name:       cfg.Name,
		RunID:      runID,
		Out:        cfg.Out,
		AboutToRun: cfg.AboutToRun,
		Passed:     cfg.Passed,
		Skipped:    cfg.Skipped,
		Outcome:    cfg.Outcome,
		NoColor:    cfg.NoColor,
		Log:        cfg.Log,
	})

	concurrency := cfg.Concurrency
	if cfg.DebugMode() {
		concurrency = 1
	}
	sched, err := runner.NewScheduler(runner.Config{
		Registry:    reg,
		Selector:    selector,
		Reporter:    t.reporter,
		Concurrency: concurrency,
		RunDisabled: cfg.RunDisabled,
		Debug:       cfg.DebugMode(),
		Log:         cfg.Log,
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create scheduler: %w", err))
	}

	if cfg.Timeout > 0 {
		w := runner.StartWatchdog(cfg.Timeout, sched.InFlight, t.abort, cfg.Log)
		defer w.Stop()
	}

	t.reporter.Start()
	runErr := sched.Run(ctx)
	t.reporter.Finish()
	t.reporter.PrintSummary()
	t.reporter.RecordMetrics()

	if cfg.JUnitOut != "" {
		if err := t.reporter.WriteJUnit(cfg.JUnitOut); err != nil {
			metrics.RecordErrorDetails("junit", err)
			return NewRuntimeError(err)
		}
	}
	if cfg.MetricsOut != "" {
		if err := metrics.WriteTextfile(cfg.MetricsOut); err != nil {
			return NewRuntimeError(err)
		}
	}

	if runErr != nil {
		return NewRuntimeError(fmt.Errorf("run interrupted: %w", runErr))
	}

	totals := t.reporter.Totals()
	cfg.Log.Info("Test run completed", "run_id", runID, "passed", totals.Passed, "failed", totals.Failed,
		"errored", totals.Errored, "disabled", totals.Disabled, "skipped", totals.Skipped())
	if t.reporter.IsFailed() {
		return NewTestFailureError(totals.Failed, totals.Errored)
	}
	return nil
}

// selector builds the run-list from whichever source the configuration names. A nil
// run-list selects every test.
func (t *tester) selector(reg *registry.Registry) (*runlist.RunList, error) {
	cfg := t.config
	switch {
	case cfg.Suite != "":
		l, err := runlist.FromSelection(reg, cfg.Suite, cfg.Test)
		if err != nil {
			return nil, fmt.Errorf("invalid test selection: %w", err)
		}
		return l, nil
	case cfg.RunListStdin:
		l, err := runlist.Parse(cfg.Stdin, reg)
		if err != nil {
			return nil, fmt.Errorf("invalid run-list on stdin: %w", err)
		}
		return l, nil
	case cfg.RunListFile != "":
		return runlist.LoadFile(cfg.RunListFile, reg)
	default:
		return nil, nil
	}
}
