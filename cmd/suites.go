package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-unit/check"
	"github.com/ethereum-optimism/infra/op-unit/registry"
	"github.com/ethereum-optimism/infra/op-unit/types"
)

// suites are the example suites compiled into the op-unit binary. They exercise every
// registration style and are expected to pass.
func suites() []registry.Initializer {
	return []registry.Initializer{
		registry.SuiteInitializer("math", mathTests),
		registry.SuiteInitializer("strings", stringTests),
		registry.SuiteInitializer("parse", parseTests),
		registry.SuiteInitializer("files", fileTests),
		registry.SuiteInitializer("exclusive", exclusiveTests),
	}
}

func mathTests(s *registry.Suite) error {
	if err := s.Add("add", 0, func() error {
		check.Equal(4, 2+2)
		return nil
	}); err != nil {
		return err
	}
	if err := s.Add("divide_by_zero", 0, func() error {
		_, err := divide(1, 0)
		check.ErrorIs(err, errDivideByZero)
		return nil
	}); err != nil {
		return err
	}
	return s.AddDisabled("overflow", 0, func() error {
		check.Fail("integer overflow is not detected yet")
		return nil
	})
}

var errDivideByZero = errors.New("divide by zero")

func divide(a, b int) (int, error) {
	if b == 0 {
		return 0, errDivideByZero
	}
	return a / b, nil
}

func stringTests(s *registry.Suite) error {
	if err := s.Add("concat", 0, func() error {
		check.Equal("op-unit", "op"+"-"+"unit")
		return nil
	}); err != nil {
		return err
	}
	return s.Add("fields", 0, func() error {
		fields := strings.Fields("  run   one\ttest ")
		check.Equal([]string{"run", "one", "test"}, fields)
		return nil
	})
}

type parseCase struct {
	in   string
	want int
}

func parseTests(s *registry.Suite) error {
	return registry.AddParametrized(s, "atoi", 0, []parseCase{
		{in: "0", want: 0},
		{in: "42", want: 42},
		{in: "-7", want: -7},
	}, func(c parseCase) error {
		got, err := strconv.Atoi(c.in)
		if err != nil {
			return err
		}
		check.Equal(c.want, got)
		return nil
	})
}

// tempFile is a per-test fixture owning a scratch directory
type tempFile struct {
	dir     string
	path    string
	content string
}

func (f *tempFile) Close() error {
	return os.RemoveAll(f.dir)
}

func newTempFile(content string) (*tempFile, error) {
	dir, err := os.MkdirTemp("", "op-unit-")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "data")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return nil, errors.Join(err, os.RemoveAll(dir))
	}
	return &tempFile{dir: dir, path: path, content: content}, nil
}

func fileTests(s *registry.Suite) error {
	return registry.AddParametrizedWithFixture(s, "read_back", 0,
		[]string{"", "hello", "multi\nline\n"},
		newTempFile,
		func(f *tempFile) error {
			data, err := os.ReadFile(f.path)
			check.NoError(err)
			check.Equal(f.content, string(data))
			return nil
		},
	)
}

// shared is only touched by no-parallel tests
var shared atomic.Int32

func exclusiveTests(s *registry.Suite) error {
	for _, name := range []string{"first", "second"} {
		if err := s.Add(name, types.FlagNoParallel, func() error {
			check.Equal(int32(1), shared.Add(1), "another test is running")
			shared.Add(-1)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
