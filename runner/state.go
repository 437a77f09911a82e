package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Hooks are the extension points of one runner level. AfterStarting runs
// after the starting event; its failures are seen by every child of the
// scope. BeforeFinished runs before the scope releases its resources; its
// failures are reported as cleanup failures.
type Hooks struct {
	AfterStarting  func(ctx context.Context) error
	BeforeFinished func(ctx context.Context) error
}

// LevelHooks holds the hooks of every runner level.
type LevelHooks struct {
	Assembly   Hooks
	Collection Hooks
	Class      Hooks
	Method     Hooks
	TestCase   Hooks
	Test       Hooks
}

// runState is shared by every runner level of one assembly run.
type runState struct {
	bus    messages.Bus
	cancel context.CancelCauseFunc
	log    log.Logger
	tracer trace.Tracer
	hooks  LevelHooks

	orderer              types.TestCaseOrderer
	assemblyName         string
	parallelizeTestCases bool
	maxParallelThreads   int

	mu          sync.Mutex
	detachedErr error
}

// publish delivers msg. A sink asking to stop cancels the run; a failing
// sink cancels the run and the error is returned.
func (s *runState) publish(msg messages.Message) error {
	cont, err := s.bus.Publish(msg)
	if err != nil {
		err = fmt.Errorf("publishing %s: %w", messages.Name(msg), err)
		s.cancel(err)
		return err
	}
	if !cont {
		s.log.Debug("Message sink requested stop", "message", messages.Name(msg))
		s.cancel(ErrStopRequested)
	}
	return nil
}

// publishDetached publishes from places that cannot return an error, such
// as test output and diagnostics. The first failure is kept and returned
// when the assembly finishes.
func (s *runState) publishDetached(msg messages.Message) {
	if err := s.publish(msg); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.detachedErr == nil {
			s.detachedErr = err
		}
	}
}

func (s *runState) firstDetachedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detachedErr
}

// diagnosticSink turns diagnostics into DiagnosticMessage events for a scope.
type diagnosticSink struct {
	state *runState
	ids   messages.IDs
}

var _ types.DiagnosticSink = (*diagnosticSink)(nil)

func (d *diagnosticSink) Diagnostic(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.state.log.Debug("Diagnostic", "message", msg)
	d.state.publishDetached(&messages.DiagnosticMessage{IDs: d.ids, Message: msg})
}

func collectionIDs(c *types.TestCollection) messages.IDs {
	return messages.IDs{Assembly: c.TestAssembly.UniqueID, Collection: c.UniqueID}
}

func classIDs(c *types.TestClass) messages.IDs {
	ids := collectionIDs(c.TestCollection)
	ids.Class = c.UniqueID
	return ids
}

func methodIDs(m *types.TestMethod) messages.IDs {
	ids := classIDs(m.TestClass)
	ids.Method = m.UniqueID
	return ids
}

func caseIDs(tc *types.TestCase) messages.IDs {
	ids := methodIDs(tc.TestMethod)
	ids.TestCase = tc.UniqueID
	return ids
}

func testIDs(t *types.Test) messages.IDs {
	ids := caseIDs(t.TestCase)
	ids.Test = t.UniqueID
	return ids
}
