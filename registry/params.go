package registry

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-unit/types"
)

// ParamID returns the test name used for the i-th parameter of a parametrized test
func ParamID(id string, i int) string {
	return fmt.Sprintf("%s[%d]", id, i)
}

// AddParametrized registers one test per parameter, named id[0]..id[N-1], each calling fn
// with its own parameter. Registration stops at the first error.
func AddParametrized[P any](s *Suite, id string, flags types.TestFlags, params []P, fn func(P) error) error {
	if fn == nil {
		return fmt.Errorf("%w: parametrized test %s/%s", ErrNullProcedure, s.Name(), id)
	}
	for i, p := range params {
		if err := s.Add(ParamID(id, i), flags, func() error { return fn(p) }); err != nil {
			return err
		}
	}
	return nil
}

// AddParametrizedWithFixture registers one test per parameter like AddParametrized, but
// each test first builds a fixture from its parameter and hands that to fn. A fixture with
// a Close method is closed after the body returns; a Close error is returned when the body
// itself succeeded.
func AddParametrizedWithFixture[P, F any](s *Suite, id string, flags types.TestFlags, params []P, newFixture func(P) (F, error), fn func(F) error) error {
	if fn == nil || newFixture == nil {
		return fmt.Errorf("%w: parametrized test %s/%s", ErrNullProcedure, s.Name(), id)
	}
	for i, p := range params {
		proc := func() (err error) {
			fixture, err := newFixture(p)
			if err != nil {
				return fmt.Errorf("building fixture: %w", err)
			}
			if closer, ok := any(fixture).(interface{ Close() error }); ok {
				defer func() {
					if cerr := closer.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("closing fixture: %w", cerr)
					}
				}()
			}
			return fn(fixture)
		}
		if err := s.Add(ParamID(id, i), flags, proc); err != nil {
			return err
		}
	}
	return nil
}
