package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-unit/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			assert.Regexp(t, validLabelRegex, result)
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	assert.NotPanics(t, func() {
		RecordError("test_error")
		RecordErrorDetails("test", nil)
		RecordErrorDetails("test", errors.New("sample error"))
	})
}

func TestRecordTestIgnoresInvalidResult(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordTest("math", types.TestStatusPassed, time.Millisecond)
		RecordTest("math", types.TestStatusDisabled, 0)
		RecordTest("math", types.TestStatus("bogus"), 0)
	})
}

func TestWriteTextfile(t *testing.T) {
	RecordTest("textfile_suite", types.TestStatusFailed, time.Millisecond)
	RecordRunnerStarted()
	RecordRun("run1", "fail", 1, 1, 0, 0, 0, time.Second)

	path := filepath.Join(t.TempDir(), "unit.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `unit_tests_total{result="failed",suite="textfile_suite"} 1`)
	assert.Contains(t, string(data), "unit_runners_started_total")
	assert.Contains(t, string(data), `unit_run_result{result="fail",run_id="run1"} 1`)

	require.Error(t, WriteTextfile(filepath.Join(t.TempDir(), "missing", "unit.prom")))
}
