package runner

import (
	"errors"
	"time"
)

// Scope names used in logs, metrics and diagnostics
const (
	ScopeAssembly   = "assembly"
	ScopeCollection = "collection"
	ScopeClass      = "class"
	ScopeMethod     = "method"
	ScopeTestCase   = "case"
	ScopeTest       = "test"

	// MaxReasonableConcurrency caps auto-determined concurrency to avoid resource exhaustion
	MaxReasonableConcurrency = 32

	// ProgressUpdateInterval is the default interval between progress log lines
	ProgressUpdateInterval = 30 * time.Second
)

var (
	// ErrStopRequested is the cancellation cause when a sink asks the run to stop.
	ErrStopRequested = errors.New("stop requested by message sink")
	// ErrMaxFailures is the cancellation cause when the failure limit is reached.
	ErrMaxFailures = errors.New("maximum number of test failures reached")
)
