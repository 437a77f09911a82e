package types

import (
	"fmt"
	"time"
)

// DefinitionError reports a mistake in how a test is declared, such as an
// argument count mismatch or an unusable data source.
type DefinitionError struct {
	Msg string
}

func (e *DefinitionError) Error() string { return e.Msg }

// TestClassError reports a test class that cannot be instantiated.
type TestClassError struct {
	Msg string
}

func (e *TestClassError) Error() string { return e.Msg }

// TimeoutError reports a test body that exceeded its timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Test execution timed out after %s", e.Timeout)
}

// ExecutionError is the failure reported by execution-error test cases.
type ExecutionError struct {
	Msg string
}

func (e *ExecutionError) Error() string { return e.Msg }
