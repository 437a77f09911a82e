// Package messages defines the events published while running tests and the
// bus that delivers them to a sink.
package messages

import (
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Message is any event published on the bus.
type Message interface {
	Scope() IDs
}

// IDs is the unique ID chain identifying where an event happened. Fields below
// the event's scope are empty.
type IDs struct {
	Assembly   string `json:"assemblyUniqueID,omitempty"`
	Collection string `json:"testCollectionUniqueID,omitempty"`
	Class      string `json:"testClassUniqueID,omitempty"`
	Method     string `json:"testMethodUniqueID,omitempty"`
	TestCase   string `json:"testCaseUniqueID,omitempty"`
	Test       string `json:"testUniqueID,omitempty"`
}

func (i IDs) Scope() IDs { return i }

// Assembly

type TestAssemblyStarting struct {
	IDs
	AssemblyName string    `json:"assemblyName"`
	AssemblyPath string    `json:"assemblyPath"`
	ConfigFile   string    `json:"configFile,omitempty"`
	Version      string    `json:"version,omitempty"`
	StartTime    time.Time `json:"startTime"`
	Seed         uint64    `json:"seed"`
	RunID        string    `json:"runId,omitempty"`
}

type TestAssemblyFinished struct {
	IDs
	Summary  types.RunSummary `json:"summary"`
	WallTime time.Duration    `json:"wallTime"`
}

type TestAssemblyCleanupFailure struct {
	IDs
	Failure FailureInfo `json:"failure"`
}

// Collection

type TestCollectionStarting struct {
	IDs
	DisplayName string `json:"displayName"`
}

type TestCollectionFinished struct {
	IDs
	Summary types.RunSummary `json:"summary"`
}

type TestCollectionCleanupFailure struct {
	IDs
	Failure FailureInfo `json:"failure"`
}

// Class

type TestClassStarting struct {
	IDs
	ClassName string `json:"className"`
}

type TestClassFinished struct {
	IDs
	Summary types.RunSummary `json:"summary"`
}

type TestClassCleanupFailure struct {
	IDs
	Failure FailureInfo `json:"failure"`
}

// Method

type TestMethodStarting struct {
	IDs
	MethodName string `json:"methodName"`
}

type TestMethodFinished struct {
	IDs
	Summary types.RunSummary `json:"summary"`
}

type TestMethodCleanupFailure struct {
	IDs
	Failure FailureInfo `json:"failure"`
}

// Case

type TestCaseStarting struct {
	IDs
	DisplayName string           `json:"displayName"`
	SkipReason  string           `json:"skipReason,omitempty"`
	Traits      types.Traits     `json:"traits,omitempty"`
	Source      types.SourceInfo `json:"source,omitempty"`
}

type TestCaseFinished struct {
	IDs
	Summary types.RunSummary `json:"summary"`
}

type TestCaseCleanupFailure struct {
	IDs
	Failure FailureInfo `json:"failure"`
}

// Test

type TestStarting struct {
	IDs
	DisplayName string        `json:"displayName"`
	Explicit    bool          `json:"explicit,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

type TestPassed struct {
	IDs
	ExecutionTime time.Duration `json:"executionTime"`
	Output        string        `json:"output,omitempty"`
}

type TestFailed struct {
	IDs
	ExecutionTime time.Duration `json:"executionTime"`
	Output        string        `json:"output,omitempty"`
	Cause         FailureCause  `json:"cause"`
	Failure       FailureInfo   `json:"failure"`
}

type TestSkipped struct {
	IDs
	Reason string `json:"reason"`
}

type TestFinished struct {
	IDs
	ExecutionTime time.Duration `json:"executionTime"`
	Output        string        `json:"output,omitempty"`
}

type TestCleanupFailure struct {
	IDs
	Failure FailureInfo `json:"failure"`
}

// TestOutput carries a line written by a running test.
type TestOutput struct {
	IDs
	Output string `json:"output"`
}

// Test instance lifecycle

type TestClassConstructionStarting struct{ IDs }

type TestClassConstructionFinished struct{ IDs }

type TestClassDisposeStarting struct{ IDs }

type TestClassDisposeFinished struct{ IDs }

type BeforeTestStarting struct {
	IDs
	HookName string `json:"hookName"`
}

type BeforeTestFinished struct {
	IDs
	HookName string `json:"hookName"`
}

type AfterTestStarting struct {
	IDs
	HookName string `json:"hookName"`
}

type AfterTestFinished struct {
	IDs
	HookName string `json:"hookName"`
}

// Diagnostics

// DiagnosticMessage carries informational text from the engine, fixtures or discovery.
type DiagnosticMessage struct {
	IDs
	Message string `json:"message"`
}

// ErrorMessage reports a failure that is not attributable to any test.
type ErrorMessage struct {
	IDs
	Failure FailureInfo `json:"failure"`
}

// Name returns a short type name for m, e.g. "TestPassed".
func Name(m Message) string {
	switch m.(type) {
	case *TestAssemblyStarting:
		return "TestAssemblyStarting"
	case *TestAssemblyFinished:
		return "TestAssemblyFinished"
	case *TestAssemblyCleanupFailure:
		return "TestAssemblyCleanupFailure"
	case *TestCollectionStarting:
		return "TestCollectionStarting"
	case *TestCollectionFinished:
		return "TestCollectionFinished"
	case *TestCollectionCleanupFailure:
		return "TestCollectionCleanupFailure"
	case *TestClassStarting:
		return "TestClassStarting"
	case *TestClassFinished:
		return "TestClassFinished"
	case *TestClassCleanupFailure:
		return "TestClassCleanupFailure"
	case *TestMethodStarting:
		return "TestMethodStarting"
	case *TestMethodFinished:
		return "TestMethodFinished"
	case *TestMethodCleanupFailure:
		return "TestMethodCleanupFailure"
	case *TestCaseStarting:
		return "TestCaseStarting"
	case *TestCaseFinished:
		return "TestCaseFinished"
	case *TestCaseCleanupFailure:
		return "TestCaseCleanupFailure"
	case *TestStarting:
		return "TestStarting"
	case *TestPassed:
		return "TestPassed"
	case *TestFailed:
		return "TestFailed"
	case *TestSkipped:
		return "TestSkipped"
	case *TestFinished:
		return "TestFinished"
	case *TestCleanupFailure:
		return "TestCleanupFailure"
	case *TestOutput:
		return "TestOutput"
	case *TestClassConstructionStarting:
		return "TestClassConstructionStarting"
	case *TestClassConstructionFinished:
		return "TestClassConstructionFinished"
	case *TestClassDisposeStarting:
		return "TestClassDisposeStarting"
	case *TestClassDisposeFinished:
		return "TestClassDisposeFinished"
	case *BeforeTestStarting:
		return "BeforeTestStarting"
	case *BeforeTestFinished:
		return "BeforeTestFinished"
	case *AfterTestStarting:
		return "AfterTestStarting"
	case *AfterTestFinished:
		return "AfterTestFinished"
	case *DiagnosticMessage:
		return "DiagnosticMessage"
	case *ErrorMessage:
		return "ErrorMessage"
	default:
		return "Unknown"
	}
}
