// Package check provides the assertion helpers used inside test procedures.
//
// A failing check panics with a *Failure. The scheduler recovers that panic and records
// the test as failed; any other panic or returned error records the test as errored.
// Panicking is the only channel a check uses to end a test, so helpers can be called from
// any depth of the test body. Procedures may also return a *Failure (see Errorf) to fail
// without panicking.
//
// Message formatting is delegated to testify's assert package, and T returns an adapter
// so the rest of the testify API can be used directly:
//
//	require.Len(check.T(), items, 3)
package check

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/stretchr/testify/assert"
)

// Failure is the outcome of a failed check
type Failure struct {
	File    string
	Line    int
	Message string
}

func (f *Failure) Error() string {
	if f.File == "" {
		return f.Message
	}
	return fmt.Sprintf("%s:%d: %s", filepath.Base(f.File), f.Line, f.Message)
}

// AsFailure returns the check failure wrapped in err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if err != nil && errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Errorf builds a failure at the caller's location without panicking, for procedures
// that prefer returning it.
func Errorf(format string, args ...any) error {
	return newFailure(fmt.Sprintf(format, args...))
}

// Fail ends the current test as failed.
func Fail(format string, args ...any) {
	panic(newFailure(fmt.Sprintf(format, args...)))
}

// True fails the test unless cond holds.
func True(cond bool, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.True(t, cond, msgAndArgs...) })
}

// False fails the test if cond holds.
func False(cond bool, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.False(t, cond, msgAndArgs...) })
}

// Equal fails the test unless expected and actual are equal.
func Equal(expected, actual any, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.Equal(t, expected, actual, msgAndArgs...) })
}

// NotEqual fails the test if expected and actual are equal.
func NotEqual(expected, actual any, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.NotEqual(t, expected, actual, msgAndArgs...) })
}

// NoError fails the test if err is non-nil.
func NoError(err error, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.NoError(t, err, msgAndArgs...) })
}

// Error fails the test if err is nil.
func Error(err error, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.Error(t, err, msgAndArgs...) })
}

// ErrorIs fails the test unless err matches target.
func ErrorIs(err, target error, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.ErrorIs(t, err, target, msgAndArgs...) })
}

// Contains fails the test unless s contains contains, using testify's rules.
func Contains(s, contains any, msgAndArgs ...any) {
	run(func(t assert.TestingT) bool { return assert.Contains(t, s, contains, msgAndArgs...) })
}

// recorder captures the message testify would print.
type recorder struct {
	message string
}

func (r *recorder) Errorf(format string, args ...any) {
	r.message = fmt.Sprintf(format, args...)
}

func run(assertion func(t assert.TestingT) bool) {
	rec := &recorder{}
	if assertion(rec) {
		return
	}
	panic(newFailure(cleanMessage(rec.message)))
}

// T returns a testify-compatible handle. Errorf and FailNow end the test as failed.
func T() *Adapter {
	return &Adapter{}
}

// Adapter satisfies both assert.TestingT and require.TestingT.
type Adapter struct{}

func (*Adapter) Errorf(format string, args ...any) {
	panic(newFailure(cleanMessage(fmt.Sprintf(format, args...))))
}

func (*Adapter) FailNow() {
	panic(newFailure("test failed"))
}

func (*Adapter) Helper() {}

// cleanMessage drops testify's stack trace block and keeps the error text.
func cleanMessage(msg string) string {
	if idx := strings.Index(msg, "\tError:"); idx != -1 {
		msg = msg[idx+len("\tError:"):]
	}
	lines := strings.Split(msg, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Test:") {
			continue
		}
		line = strings.TrimPrefix(line, "Messages:")
		out = append(out, strings.TrimSpace(line))
	}
	return strings.Join(out, "\n")
}

func newFailure(message string) *Failure {
	file, line := callerOutside()
	return &Failure{File: file, Line: line, Message: message}
}

// callerOutside finds the first stack frame that belongs to neither this package nor
// testify, which is the line of the test body that issued the check.
func callerOutside() (string, int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isInternalFrame(frame.Function) {
			return frame.File, frame.Line
		}
		if !more {
			return "", 0
		}
	}
}

func isInternalFrame(function string) bool {
	return strings.HasPrefix(function, "github.com/stretchr/testify/") ||
		strings.HasPrefix(function, "github.com/ethereum-optimism/infra/op-unit/check.") ||
		strings.HasPrefix(function, "runtime.")
}
