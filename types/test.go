package types

import (
	"strings"
	"time"
)

// TestStatus represents the possible states of a test case within a run
type TestStatus string

const (
	TestStatusNotRun   TestStatus = "not run"
	TestStatusPassed   TestStatus = "passed"
	TestStatusFailed   TestStatus = "failed"
	TestStatusErrored  TestStatus = "errored"
	TestStatusDisabled TestStatus = "disabled"
)

// IsTerminal reports whether the status is an executed or disabled outcome.
func (s TestStatus) IsTerminal() bool {
	switch s {
	case TestStatusPassed, TestStatusFailed, TestStatusErrored, TestStatusDisabled:
		return true
	}
	return false
}

// TestFlags is a bit set of registration-time flags on a test case
type TestFlags uint8

const (
	// FlagDisabled marks a test that is not executed unless disabled tests are requested.
	FlagDisabled TestFlags = 1 << iota
	// FlagNoParallel marks a test that must never run concurrently with another test.
	FlagNoParallel
)

// Has reports whether every bit of other is set in f.
func (f TestFlags) Has(other TestFlags) bool {
	return f&other == other
}

func (f TestFlags) String() string {
	var parts []string
	if f.Has(FlagDisabled) {
		parts = append(parts, "disabled")
	}
	if f.Has(FlagNoParallel) {
		parts = append(parts, "no_parallel")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Procedure is the body of a test case. A returned error, or a panic, ends the test.
// Failures raised by the check package are classified as failed, anything else as errored.
type Procedure func() error

// FullID uniquely identifies a test case across the registry
type FullID struct {
	Suite string
	Test  string
}

func (id FullID) String() string {
	return id.Suite + "/" + id.Test
}

// TestResult captures the outcome of a single test case
type TestResult struct {
	ID       FullID
	Status   TestStatus
	Duration time.Duration
	Message  string
	Reported bool // Set once the reporter has recorded any outcome, including skipped
}
