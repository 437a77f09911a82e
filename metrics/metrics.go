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

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

const (
	MetricsNamespace = "testkit"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

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
		Help:      "Count of executed tests by result",
	}, []string{
		"assembly",
		"result",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Execution time of individual tests",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"assembly",
	})

	scopesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scopes_total",
		Help:      "Count of finished scopes (collection, class, method, case) by status",
	}, []string{
		"scope",
		"result",
	})

	cleanupFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cleanup_failures_total",
		Help:      "Count of cleanup failures by scope",
	}, []string{
		"scope",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of the latest assembly run",
	}, []string{
		"assembly",
		"run_id",
		"result",
	})

	runTestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests per run",
	}, []string{
		"assembly",
		"run_id",
	})

	runTestsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_failed",
		Help:      "Number of failed tests per run",
	}, []string{
		"assembly",
		"run_id",
	})

	runTestsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_skipped",
		Help:      "Number of skipped tests per run",
	}, []string{
		"assembly",
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Wall-clock duration of the latest assembly run",
	}, []string{
		"assembly",
		"run_id",
	})

	runsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_in_flight",
		Help:      "Number of assembly runs in progress",
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

// RecordTest records the outcome and execution time of one test.
func RecordTest(assembly string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"assembly", assembly,
			"result", result)
	}
	testsTotal.WithLabelValues(assembly, string(result)).Inc()
	testDuration.WithLabelValues(assembly).Observe(duration.Seconds())
}

// RecordScope records a finished collection, class, method or case.
func RecordScope(scope string, summary types.RunSummary) {
	scopesTotal.WithLabelValues(scope, string(summary.Status())).Inc()
}

// RecordCleanupFailure records a failure while releasing a scope's resources.
func RecordCleanupFailure(scope string) {
	if Debug {
		log.Debug("metric inc",
			"m", "cleanup_failures_total",
			"scope", scope)
	}
	cleanupFailuresTotal.WithLabelValues(scope).Inc()
}

// RecordRun records the summary of a finished assembly run.
func RecordRun(assembly string, runID string, summary types.RunSummary, duration time.Duration) {
	runResults.WithLabelValues(assembly, runID, string(summary.Status())).Set(1)
	runTestsTotal.WithLabelValues(assembly, runID).Add(float64(summary.Total))
	runTestsFailed.WithLabelValues(assembly, runID).Add(float64(summary.Failed))
	runTestsSkipped.WithLabelValues(assembly, runID).Add(float64(summary.Skipped))
	runDuration.WithLabelValues(assembly, runID).Set(duration.Seconds())
}

// RunStarted and RunFinished track runs in progress.
func RunStarted()  { runsInFlight.Inc() }
func RunFinished() { runsInFlight.Dec() }

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
