package registry

import "github.com/ethereum-optimism/infra/op-unit/types"

// Iterator is a read-only cursor over every registered test. Suites are visited in
// registration order and tests within a suite in name order; empty suites are skipped.
// Callers must not depend on any order beyond that.
type Iterator struct {
	suites []*Suite
	tests  []*TestCase
	suite  int
	test   int
}

// Iterator returns a cursor positioned on the first test, if any
func (r *Registry) Iterator() *Iterator {
	it := &Iterator{suites: r.Suites(), suite: -1}
	it.nextSuite()
	return it
}

// Valid reports whether the cursor points at a test
func (it *Iterator) Valid() bool {
	return it.suite < len(it.suites)
}

// Next advances to the following test, moving to the next non-empty suite when needed
func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	it.test++
	if it.test >= len(it.tests) {
		it.nextSuite()
	}
}

// CurrentID returns the full id of the current test
func (it *Iterator) CurrentID() types.FullID {
	return it.Current().ID()
}

// Current returns the current test case. It panics when the iterator is exhausted.
func (it *Iterator) Current() *TestCase {
	if !it.Valid() {
		panic("registry: iterator is exhausted")
	}
	return it.tests[it.test]
}

func (it *Iterator) nextSuite() {
	it.test = 0
	for it.suite++; it.suite < len(it.suites); it.suite++ {
		it.tests = it.suites[it.suite].Tests()
		if len(it.tests) > 0 {
			return
		}
	}
	it.tests = nil
}
