package unit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-unit/flags"
	"github.com/ethereum-optimism/infra/op-unit/runner"
)

// Config holds the application configuration
type Config struct {
	Name         string        // run name shown in reports
	Concurrency  int           // number of runners, runner.Unbounded for no limit
	JUnitOut     string        // JUnit XML report path, empty to skip
	MetricsOut   string        // Prometheus textfile path, empty to skip
	ListTests    bool          // print the registered tests and exit
	AboutToRun   bool          // print every test before it starts
	Passed       bool          // print passed tests
	Skipped      bool          // print tests excluded by the run-list
	Outcome      bool          // print the per-suite results table
	NoColor      bool          // disable ANSI colors
	RunDisabled  bool          // run tests marked disabled
	RunListStdin bool          // read the run-list from Stdin
	RunListFile  string        // YAML run-list path
	Suite        string        // restrict the run to one suite
	Test         string        // restrict the run to one test of Suite
	Timeout      time.Duration // abort the process after this long, 0 for no limit
	Metrics      opmetrics.CLIConfig
	Stdin        io.Reader
	Out          io.Writer
	Log          log.Logger
}

// DebugMode reports whether a single test is pinned through --suite and --test. Panics
// from that test are not recovered so a debugger stops at the faulting line.
func (c *Config) DebugMode() bool {
	return c.Suite != "" && c.Test != ""
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckSelection(ctx); err != nil {
		return nil, err
	}

	jobs, unbounded, err := flags.ParseJobs(ctx.String(flags.Jobs.Name))
	if err != nil {
		return nil, err
	}
	if unbounded {
		jobs = runner.Unbounded
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	cfg := &Config{
		Name:         ctx.App.Name,
		Concurrency:  jobs,
		ListTests:    ctx.Bool(flags.ListTests.Name),
		AboutToRun:   ctx.Bool(flags.AboutToRun.Name),
		Passed:       ctx.Bool(flags.Passed.Name),
		Skipped:      ctx.Bool(flags.Skipped.Name),
		Outcome:      ctx.Bool(flags.Outcome.Name),
		NoColor:      ctx.Bool(flags.NoColor.Name),
		RunDisabled:  ctx.Bool(flags.RunDisabled.Name),
		RunListStdin: ctx.Bool(flags.RunListStdin.Name),
		Suite:        ctx.String(flags.Suite.Name),
		Test:         ctx.String(flags.Test.Name),
		Timeout:      ctx.Duration(flags.Timeout.Name),
		Metrics:      metricsCfg,
		Stdin:        ctx.App.Reader,
		Out:          ctx.App.Writer,
		Log:          log,
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative, got %s", cfg.Timeout)
	}

	paths := []struct {
		dst  *string
		flag string
	}{
		{&cfg.JUnitOut, flags.JUnitOut.Name},
		{&cfg.MetricsOut, flags.MetricsOut.Name},
		{&cfg.RunListFile, flags.RunList.Name},
	}
	for _, p := range paths {
		v := ctx.String(p.flag)
		if v == "" {
			continue
		}
		abs, err := filepath.Abs(v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for %s '%s': %w", p.flag, v, err)
		}
		*p.dst = abs
	}

	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return cfg, nil
}
