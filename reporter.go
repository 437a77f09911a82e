package testkit

import (
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/metrics"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// StatusReporter is responsible for publishing the outcome of runs outside
// the process.
type StatusReporter interface {
	ReportResults(result *RunResult)
	ReportError(err error)
}

// RunStatus is the state served on the status endpoint.
type RunStatus struct {
	Runs        int              `json:"runs"`
	LastRunID   string           `json:"lastRunId,omitempty"`
	LastStatus  types.TestStatus `json:"lastStatus,omitempty"`
	LastSummary types.RunSummary `json:"lastSummary"`
	LastRunAt   time.Time        `json:"lastRunAt,omitempty"`
	LastRunDir  string           `json:"lastRunDir,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
}

// DefaultStatusReporter keeps the latest run status for the healthz server
// and records run errors as metrics.
type DefaultStatusReporter struct {
	mu     sync.RWMutex
	status RunStatus
}

var _ StatusReporter = (*DefaultStatusReporter)(nil)

// NewDefaultStatusReporter creates a new DefaultStatusReporter.
func NewDefaultStatusReporter() *DefaultStatusReporter {
	return &DefaultStatusReporter{}
}

// ReportResults records a completed run.
func (r *DefaultStatusReporter) ReportResults(result *RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Runs++
	r.status.LastRunID = result.RunID
	r.status.LastStatus = result.Status
	r.status.LastSummary = result.Summary
	r.status.LastRunAt = time.Now()
	r.status.LastRunDir = result.RunDir
	r.status.LastError = ""
}

// ReportError records a run that could not be carried out.
func (r *DefaultStatusReporter) ReportError(err error) {
	metrics.RecordErrorDetails("run", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Runs++
	r.status.LastStatus = types.TestStatusError
	r.status.LastRunAt = time.Now()
	r.status.LastError = err.Error()
}

// Status returns a copy of the latest run status.
func (r *DefaultStatusReporter) Status() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}
