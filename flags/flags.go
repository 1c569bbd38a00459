package flags

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_UNIT"

const (
	JobsAuto = "auto"
	JobsMax  = "max"
)

var (
	Jobs = &cli.StringFlag{
		Name:    "jobs",
		Aliases: []string{"j"},
		Value:   "1",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JOBS"),
		Usage:   "Number of tests to run in parallel: a positive number, 'auto' for one per CPU, or 'max' for no limit",
		Action:  validateJobs,
	}
	JUnitOut = &cli.StringFlag{
		Name:    "junit-out",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JUNIT_OUT"),
		Usage:   "Path of the JUnit XML report to write after the run",
	}
	ListTests = &cli.BoolFlag{
		Name:    "list-tests",
		Aliases: []string{"l"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIST_TESTS"),
		Usage:   "List all suites and tests without running them",
	}
	AboutToRun = &cli.BoolFlag{
		Name:    "about-to-run",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ABOUT_TO_RUN"),
		Usage:   "Print the name of every test before it starts",
	}
	Passed = &cli.BoolFlag{
		Name:    "passed",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PASSED"),
		Usage:   "Print the name of every passed test",
	}
	Skipped = &cli.BoolFlag{
		Name:    "skipped",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SKIPPED"),
		Usage:   "Print the name of every test excluded by the run-list",
	}
	Outcome = &cli.BoolFlag{
		Name:    "outcome",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTCOME"),
		Usage:   "Print a per-suite results table at the end of the run",
	}
	NoColor = &cli.BoolFlag{
		Name:    "no-color",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NO_COLOR"),
		Usage:   "Disable ANSI colors in console output",
	}
	RunDisabled = &cli.BoolFlag{
		Name:    "run-disabled",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_DISABLED"),
		Usage:   "Run tests that are marked disabled",
	}
	RunListStdin = &cli.BoolFlag{
		Name:    "run-list-stdin",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_LIST_STDIN"),
		Usage:   "Read the list of suites and tests to run from standard input",
	}
	RunList = &cli.StringFlag{
		Name:    "run-list",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_LIST"),
		Usage:   "Path to a YAML run-list file (eg. 'runlist.yaml')",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE"),
		Usage:   "Run only the given suite",
	}
	Test = &cli.StringFlag{
		Name:    "test",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST"),
		Usage:   "Run only the given test of --suite. Panics are not recovered in this mode",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Abort the process when the run takes longer than this (e.g. '10m'). 0 means no limit",
	}
	MetricsOut = &cli.StringFlag{
		Name:    "metrics-out",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_OUT"),
		Usage:   "Path of a Prometheus textfile to write the run metrics to",
	}
)

var optionalFlags = []cli.Flag{
	Jobs,
	JUnitOut,
	ListTests,
	AboutToRun,
	Passed,
	Skipped,
	Outcome,
	NoColor,
	RunDisabled,
	RunListStdin,
	RunList,
	Suite,
	Test,
	Timeout,
	MetricsOut,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

// ParseJobs converts a --jobs value into a runner count. unbounded is set for "max".
func ParseJobs(v string) (n int, unbounded bool, err error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case JobsMax:
		return 0, true, nil
	case JobsAuto:
		return runtime.NumCPU(), false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false, fmt.Errorf("jobs must be a positive number, %q or %q, got %q", JobsAuto, JobsMax, v)
	}
	return n, false, nil
}

func validateJobs(_ *cli.Context, v string) error {
	_, _, err := ParseJobs(v)
	return err
}

// CheckSelection rejects a --test without its --suite
func CheckSelection(ctx *cli.Context) error {
	if ctx.String(Test.Name) != "" && ctx.String(Suite.Name) == "" {
		return fmt.Errorf("flag %s requires flag %s", Test.Name, Suite.Name)
	}
	sources := 0
	for _, set := range []bool{ctx.String(Suite.Name) != "", ctx.Bool(RunListStdin.Name), ctx.String(RunList.Name) != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return fmt.Errorf("flags %s, %s and %s are mutually exclusive", Suite.Name, RunListStdin.Name, RunList.Name)
	}
	return nil
}
