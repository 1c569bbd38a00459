package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-unit/types"
)

const (
	MetricsNamespace = "unit"
)

var (
	Debug                = false
	validResults         = []types.TestStatus{types.TestStatusPassed, types.TestStatusFailed, types.TestStatusErrored, types.TestStatusDisabled, types.TestStatusNotRun}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of reported tests by suite and outcome",
	}, []string{
		"suite",
		"result",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of executed test procedures",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"suite",
	})

	runnersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runners_started_total",
		Help:      "Number of runner goroutines started by worker pools",
	})

	runResult = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_result",
		Help:      "Verdict of a run, set to 1 for the reported result",
	}, []string{
		"run_id",
		"result",
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Number of tests in a run by outcome",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of a run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTest counts one reported outcome. Durations are only observed for tests that ran.
func RecordTest(suite string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"suite", suite,
			"result", result)
	}
	testsTotal.WithLabelValues(suite, string(result)).Inc()
	if result != types.TestStatusDisabled && result != types.TestStatusNotRun {
		testDuration.WithLabelValues(suite).Observe(duration.Seconds())
	}
}

func RecordRunnerStarted() {
	runnersStarted.Inc()
}

// RecordRun records the verdict and totals of a finished run
func RecordRun(
	runID string,
	result string,
	passed int,
	failed int,
	errored int,
	disabled int,
	skipped int,
	duration time.Duration,
) {
	runResult.WithLabelValues(runID, result).Set(1)
	runTests.WithLabelValues(runID, string(types.TestStatusPassed)).Set(float64(passed))
	runTests.WithLabelValues(runID, string(types.TestStatusFailed)).Set(float64(failed))
	runTests.WithLabelValues(runID, string(types.TestStatusErrored)).Set(float64(errored))
	runTests.WithLabelValues(runID, string(types.TestStatusDisabled)).Set(float64(disabled))
	runTests.WithLabelValues(runID, "skipped").Set(float64(skipped))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// WriteTextfile dumps every registered metric to path in the Prometheus text format, for
// node_exporter's textfile collector or CI artifact upload.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
