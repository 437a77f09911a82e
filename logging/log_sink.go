package logging

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
)

// LogSink mirrors run events to a logger. Test results are logged at Info
// (failures at Warn), brackets and lifecycle events at Debug.
type LogSink struct {
	log   log.Logger
	mu    sync.Mutex
	names map[string]string
}

var _ messages.Sink = (*LogSink)(nil)

// NewLogSink creates a sink logging to lgr.
func NewLogSink(lgr log.Logger) *LogSink {
	if lgr == nil {
		lgr = log.New()
		lgr.Error("No logger provided, using default")
	}
	return &LogSink{log: lgr, names: make(map[string]string)}
}

func (s *LogSink) OnMessage(msg messages.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case *messages.TestAssemblyStarting:
		s.log.Info("Test assembly starting", "assembly", m.AssemblyName, "seed", m.Seed, "runID", m.RunID)
	case *messages.TestAssemblyFinished:
		s.log.Info("Test assembly finished", "total", m.Summary.Total, "failed", m.Summary.Failed,
			"skipped", m.Summary.Skipped, "time", m.Summary.Time, "wallTime", m.WallTime)
	case *messages.TestCollectionStarting:
		s.log.Debug("Test collection starting", "collection", m.DisplayName)
	case *messages.TestClassStarting:
		s.log.Debug("Test class starting", "class", m.ClassName)
	case *messages.TestStarting:
		s.names[m.Test] = m.DisplayName
		s.log.Debug("Test starting", "test", m.DisplayName)
	case *messages.TestPassed:
		s.log.Info("Test passed", "test", s.names[m.Test], "duration", m.ExecutionTime)
	case *messages.TestFailed:
		s.log.Warn("Test failed", "test", s.names[m.Test], "duration", m.ExecutionTime,
			"cause", m.Cause, "type", m.Failure.Type(), "err", m.Failure.Message())
	case *messages.TestSkipped:
		s.log.Info("Test skipped", "test", s.names[m.Test], "reason", m.Reason)
	case *messages.TestFinished:
		delete(s.names, m.Test)
	case *messages.TestOutput:
		s.log.Trace("Test output", "test", s.names[m.Test], "output", m.Output)
	case *messages.TestAssemblyCleanupFailure, *messages.TestCollectionCleanupFailure,
		*messages.TestClassCleanupFailure, *messages.TestMethodCleanupFailure,
		*messages.TestCaseCleanupFailure, *messages.TestCleanupFailure:
		s.log.Error("Cleanup failure", "event", messages.Name(msg), "scope", msg.Scope())
	case *messages.ErrorMessage:
		s.log.Error("Test engine error", "type", m.Failure.Type(), "err", m.Failure.Message())
	case *messages.DiagnosticMessage:
		s.log.Info("Diagnostic", "message", m.Message)
	}
	return true, nil
}
