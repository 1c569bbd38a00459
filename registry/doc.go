// Package registry holds the suites and test cases of a test binary.
//
// Tests are registered before a run, usually by initializers appended from package init
// functions with Register, and replayed into a fresh Registry by Build. Once built the
// registry is sealed: the scheduler reads it from many goroutines without locking beyond
// the registry's own read lock, and outcomes are recorded by the reporter, never here.
package registry
