package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/ethereum-optimism/infra/op-unit/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrNullProcedure     = errors.New("null procedure")
	ErrSealed            = errors.New("registry is sealed")
	ErrAlreadyRegistered = errors.New("already registered")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_\[\]]+$`)

// ValidateID checks a suite or test name against the allowed character set:
// letters, digits, underscore and square brackets.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: %q may only contain letters, digits, '_', '[' and ']'", ErrInvalidID, id)
	}
	return nil
}

// TestCase is the immutable registration data of a single test
type TestCase struct {
	suite string
	name  string
	proc  types.Procedure
	flags types.TestFlags
}

func (tc *TestCase) ID() types.FullID {
	return types.FullID{Suite: tc.suite, Test: tc.name}
}

func (tc *TestCase) Suite() string { return tc.suite }
func (tc *TestCase) Name() string { return tc.name }
func (tc *TestCase) Procedure() types.Procedure { return tc.proc }
func (tc *TestCase) Flags() types.TestFlags { return tc.flags }
func (tc *TestCase) Disabled() bool { return tc.flags.Has(types.FlagDisabled) }
func (tc *TestCase) NoParallel() bool { return tc.flags.Has(types.FlagNoParallel) }

// Suite is a named group of test cases, enumerated in test name order
type Suite struct {
	registry    *Registry
	name        string
	tests       map[string]*TestCase
	names       []string // sorted
	numDisabled int
}

// Name returns the suite name
func (s *Suite) Name() string {
	return s.name
}

// Size returns the number of registered tests
func (s *Suite) Size() int {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	return len(s.names)
}

// NumDisabled returns the number of tests registered as disabled
func (s *Suite) NumDisabled() int {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	return s.numDisabled
}

// Test looks up a test case by name
func (s *Suite) Test(name string) (*TestCase, bool) {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	tc, ok := s.tests[name]
	return tc, ok
}

// Tests returns the suite's test cases in name order
func (s *Suite) Tests() []*TestCase {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	out := make([]*TestCase, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.tests[name])
	}
	return out
}

// Add registers a test. Disabled tests must go through AddDisabled.
func (s *Suite) Add(name string, flags types.TestFlags, proc types.Procedure) error {
	if proc == nil {
		return fmt.Errorf("%w: test %s/%s", ErrNullProcedure, s.name, name)
	}
	return s.add(name, flags, proc)
}

// AddDisabled registers a test with the disabled flag forced on. The procedure may be
// nil; a non-nil procedure is kept so that disabled tests can still be run on request.
func (s *Suite) AddDisabled(name string, flags types.TestFlags, proc types.Procedure) error {
	return s.add(name, flags|types.FlagDisabled, proc)
}

func (s *Suite) add(name string, flags types.TestFlags, proc types.Procedure) error {
	if err := ValidateID(name); err != nil {
		return fmt.Errorf("test in suite %s: %w", s.name, err)
	}

	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	if s.registry.sealed {
		return fmt.Errorf("adding %s/%s: %w", s.name, name, ErrSealed)
	}
	if _, exists := s.tests[name]; exists {
		return fmt.Errorf("%w: test %s/%s is already registered", ErrDuplicateID, s.name, name)
	}

	s.tests[name] = &TestCase{suite: s.name, name: name, proc: proc, flags: flags}
	idx := sort.SearchStrings(s.names, name)
	s.names = append(s.names, "")
	copy(s.names[idx+1:], s.names[idx:])
	s.names[idx] = name
	if flags.Has(types.FlagDisabled) {
		s.numDisabled++
	}
	s.registry.numTests++
	return nil
}

// Registry holds every registered suite. Its topology is built once at startup and is
// read-only once sealed; only results change during a run, and those live in the reporter.
type Registry struct {
	mu       sync.RWMutex
	suites   map[string]*Suite
	order    []string // registration order
	numTests int
	sealed   bool
	log      log.Logger
}

// New creates an empty registry
func New(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.New()
	}
	return &Registry{
		suites: make(map[string]*Suite),
		log:    logger,
	}
}

// Suite returns the named suite, creating it on first use
func (r *Registry) Suite(name string) (*Suite, error) {
	if err := ValidateID(name); err != nil {
		return nil, fmt.Errorf("suite: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.suites[name]; ok {
		return s, nil
	}
	if r.sealed {
		return nil, fmt.Errorf("creating suite %s: %w", name, ErrSealed)
	}
	s := &Suite{
		registry: r,
		name:     name,
		tests:    make(map[string]*TestCase),
	}
	r.suites[name] = s
	r.order = append(r.order, name)
	r.log.Debug("Registered suite", "suite", name)
	return s, nil
}

// Seal freezes the topology. Subsequent registrations fail with ErrSealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Lookup returns an existing suite without creating it
func (r *Registry) Lookup(name string) (*Suite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.suites[name]
	return s, ok
}

// HasSuite reports whether a suite with the given name exists
func (r *Registry) HasSuite(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// HasTest reports whether the given test exists in the given suite
func (r *Registry) HasTest(suite, test string) bool {
	s, ok := r.Lookup(suite)
	if !ok {
		return false
	}
	_, ok = s.Test(test)
	return ok
}

// TestCase looks a test case up by its full id
func (r *Registry) TestCase(id types.FullID) (*TestCase, bool) {
	s, ok := r.Lookup(id.Suite)
	if !ok {
		return nil, false
	}
	return s.Test(id.Test)
}

// Suites returns every suite in registration order
func (r *Registry) Suites() []*Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Suite, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.suites[name])
	}
	return out
}

// Len returns the total number of registered tests
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.numTests
}
