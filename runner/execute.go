package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ethereum-optimism/infra/op-unit/check"
	"github.com/ethereum-optimism/infra/op-unit/registry"
	"github.com/ethereum-optimism/infra/op-unit/types"
)

// PanicError carries a value recovered from a panicking test procedure
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Classify maps the error returned by a procedure to a test status and the message to
// report. A check failure, returned or panicked, means failed; any other error means
// errored.
func Classify(err error) (types.TestStatus, string) {
	if err == nil {
		return types.TestStatusPassed, ""
	}
	if f, ok := check.AsFailure(err); ok {
		var pe *PanicError
		if errors.As(err, &pe) {
			return types.TestStatusFailed, f.Error()
		}
		return types.TestStatusFailed, err.Error()
	}
	return types.TestStatusErrored, err.Error()
}

// invoke calls proc and turns any panic into an error
func invoke(proc types.Procedure) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(*check.Failure); ok {
				err = f
				return
			}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return proc()
}

// execute runs one test and reports its outcome
func (s *Scheduler) execute(ctx context.Context, tc *registry.TestCase) {
	id := tc.ID()
	_, span := s.tracer.Start(ctx, fmt.Sprintf("test %s", id))
	defer span.End()

	s.markStarted(id)
	defer s.markFinished(id)
	s.reporter.AboutToRun(id)

	var err error
	start := time.Now()
	if s.debug {
		err = tc.Procedure()()
	} else {
		err = invoke(tc.Procedure())
	}
	elapsed := time.Since(start)

	status, message := Classify(err)
	span.SetAttributes(attribute.String("status", string(status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, message)
	}

	var pe *PanicError
	if errors.As(err, &pe) {
		s.log.Debug("Test panicked", "test", id.String(), "value", pe.Value, "stack", string(pe.Stack))
	}

	switch status {
	case types.TestStatusPassed:
		s.reporter.ReportPass(id, elapsed)
	case types.TestStatusFailed:
		s.reporter.ReportFailure(id, elapsed, message)
	default:
		s.reporter.ReportError(id, elapsed, message)
	}
}
