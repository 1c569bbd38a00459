// Package runlist restricts a run to an explicit allow-list of suites and tests.
package runlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-unit/registry"
)

var ErrNotFound = errors.New("not found")

// SyntaxError reports a malformed run-list line
type SyntaxError struct {
	Line int // 1-based
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("run-list line %d: %s", e.Line, e.Msg)
}

// Lookup is the part of the registry the run-list validates names against
type Lookup interface {
	HasSuite(name string) bool
	HasTest(suite, test string) bool
}

// RunList maps suite names to selected test names. A suite with no tests selects the
// whole suite; a suite that is absent is not selected. A nil or empty RunList selects
// every test.
type RunList struct {
	suites map[string]map[string]struct{}
}

// New returns an empty run-list, which selects everything until a suite is added
func New() *RunList {
	return &RunList{suites: make(map[string]map[string]struct{})}
}

// AddSuite selects every test of a suite
func (l *RunList) AddSuite(suite string) {
	l.suites[suite] = map[string]struct{}{}
}

// AddTest selects one test. It has no effect when the whole suite is already selected
// through AddSuite.
func (l *RunList) AddTest(suite, test string) {
	tests, ok := l.suites[suite]
	if ok && len(tests) == 0 {
		return
	}
	if !ok {
		tests = make(map[string]struct{})
		l.suites[suite] = tests
	}
	tests[test] = struct{}{}
}

// IsSelected reports whether a test takes part in the run
func (l *RunList) IsSelected(suite, test string) bool {
	if l == nil || len(l.suites) == 0 {
		return true
	}
	tests, ok := l.suites[suite]
	if !ok {
		return false
	}
	if len(tests) == 0 {
		return true
	}
	_, ok = tests[test]
	return ok
}

// IsEmpty reports whether the run-list selects everything
func (l *RunList) IsEmpty() bool {
	return l == nil || len(l.suites) == 0
}

// String renders the run-list in the text format accepted by Parse
func (l *RunList) String() string {
	if l.IsEmpty() {
		return ""
	}
	names := make([]string, 0, len(l.suites))
	for name := range l.suites {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('\n')
		tests := make([]string, 0, len(l.suites[name]))
		for test := range l.suites[name] {
			tests = append(tests, test)
		}
		sort.Strings(tests)
		for _, test := range tests {
			sb.WriteString("  ")
			sb.WriteString(test)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// FromSelection builds a run-list from a suite and an optional test name
func FromSelection(reg Lookup, suite, test string) (*RunList, error) {
	if suite == "" {
		if test != "" {
			return nil, errors.New("a test can only be selected together with its suite")
		}
		return New(), nil
	}
	if !reg.HasSuite(suite) {
		return nil, fmt.Errorf("suite %q: %w", suite, ErrNotFound)
	}
	l := New()
	if test == "" {
		l.AddSuite(suite)
		return l, nil
	}
	if !reg.HasTest(suite, test) {
		return nil, fmt.Errorf("test %q in suite %q: %w", test, suite, ErrNotFound)
	}
	l.AddTest(suite, test)
	return l, nil
}

// Parse reads the text run-list format: one suite name per non-indented line, followed by
// indented test names selecting individual tests of that suite. A suite without indented
// test lines is selected whole. Blank lines and lines starting with '#' are ignored.
func Parse(r io.Reader, reg Lookup) (*RunList, error) {
	l := New()
	scanner := bufio.NewScanner(r)

	var (
		lineNo       int
		currentSuite string
		suiteTests   int
	)
	closeSuite := func() {
		if currentSuite != "" && suiteTests == 0 {
			l.AddSuite(currentSuite)
		}
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := registry.ValidateID(line); err != nil {
			return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("invalid name %q", line)}
		}

		indented := raw[0] == ' ' || raw[0] == '\t'
		if !indented {
			closeSuite()
			if !reg.HasSuite(line) {
				return nil, fmt.Errorf("run-list line %d: suite %q: %w", lineNo, line, ErrNotFound)
			}
			currentSuite, suiteTests = line, 0
			continue
		}

		if currentSuite == "" {
			return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("test %q is not preceded by a suite", line)}
		}
		if !reg.HasTest(currentSuite, line) {
			return nil, fmt.Errorf("run-list line %d: test %q in suite %q: %w", lineNo, line, currentSuite, ErrNotFound)
		}
		l.AddTest(currentSuite, line)
		suiteTests++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading run-list: %w", err)
	}
	closeSuite()
	return l, nil
}

// fileFormat is the YAML form of a run-list:
//
//	suites:
//	  math: []           # whole suite
//	  strings: [concat]  # single test
type fileFormat struct {
	Suites map[string][]string `yaml:"suites"`
}

// LoadFile reads a YAML run-list and validates it like Parse
func LoadFile(path string, reg Lookup) (*RunList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run-list file: %w", err)
	}

	var cfg fileFormat
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing run-list file: %w", err)
	}

	l := New()
	for suite, tests := range cfg.Suites {
		if err := registry.ValidateID(suite); err != nil {
			return nil, fmt.Errorf("run-list file: %w", err)
		}
		if !reg.HasSuite(suite) {
			return nil, fmt.Errorf("run-list file: suite %q: %w", suite, ErrNotFound)
		}
		if len(tests) == 0 {
			l.AddSuite(suite)
			continue
		}
		for _, test := range tests {
			if err := registry.ValidateID(test); err != nil {
				return nil, fmt.Errorf("run-list file: %w", err)
			}
			if !reg.HasTest(suite, test) {
				return nil, fmt.Errorf("run-list file: test %q in suite %q: %w", test, suite, ErrNotFound)
			}
			l.AddTest(suite, test)
		}
	}
	return l, nil
}
