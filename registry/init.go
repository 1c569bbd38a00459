package registry

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Initializer populates a registry with suites and tests
type Initializer func(r *Registry) error

var (
	initMu       sync.Mutex
	initializers []Initializer

	globalFixture func() (teardown func(), err error)
)

// Register appends an initializer to the process-wide list. It is meant to be called
// from package init functions of test packages; Build replays the list in call order.
func Register(init Initializer) {
	initMu.Lock()
	defer initMu.Unlock()
	initializers = append(initializers, init)
}

// SuiteInitializer is a convenience for registering a whole suite in one place
func SuiteInitializer(name string, populate func(s *Suite) error) Initializer {
	return func(r *Registry) error {
		s, err := r.Suite(name)
		if err != nil {
			return err
		}
		return populate(s)
	}
}

// Build creates a registry by replaying the registered initializers followed by extra, in
// order, and seals the result. The first failing initializer aborts the build.
func Build(logger log.Logger, extra ...Initializer) (*Registry, error) {
	initMu.Lock()
	all := make([]Initializer, 0, len(initializers)+len(extra))
	all = append(all, initializers...)
	initMu.Unlock()
	all = append(all, extra...)

	r := New(logger)
	for i, init := range all {
		if init == nil {
			continue
		}
		if err := init(r); err != nil {
			return nil, fmt.Errorf("initializer %d: %w", i, err)
		}
	}
	r.Seal()
	r.log.Debug("Registry built", "suites", len(r.order), "tests", r.Len(), "initializers", len(all))
	return r, nil
}

// SetGlobalFixture stores the process-wide setup callback run once before any test is
// dispatched. The returned teardown, if non-nil, runs after the last test. Only one
// callback may be registered.
func SetGlobalFixture(setup func() (teardown func(), err error)) error {
	initMu.Lock()
	defer initMu.Unlock()
	if setup == nil {
		return fmt.Errorf("global fixture: %w", ErrNullProcedure)
	}
	if globalFixture != nil {
		return fmt.Errorf("global fixture: %w", ErrAlreadyRegistered)
	}
	globalFixture = setup
	return nil
}

// GlobalFixture returns the registered global setup callback, or nil
func GlobalFixture() func() (teardown func(), err error) {
	initMu.Lock()
	defer initMu.Unlock()
	return globalFixture
}
