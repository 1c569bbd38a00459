// Package exitcodes defines the standard exit codes used by op-unit.
package exitcodes

// Exit code constants used by op-unit test binaries.
//
// * Success (0): all selected tests passed (disabled and skipped tests do not count), or
//   the invocation only printed help or the test list
// * TestFailure (1): one or more tests failed or errored
// * RuntimeErr (2): configuration errors, registration errors, or the watchdog timeout
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures or errors
	RuntimeErr  = 2 // Configuration, registration or runtime errors
)
