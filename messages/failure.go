package messages

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// FailureCause classifies why a test failed.
type FailureCause string

const (
	CauseException FailureCause = "exception"
	CauseAssertion FailureCause = "assertion"
	CauseTimeout   FailureCause = "timeout"
)

// FailureInfo is a flattened error tree. Entry 0 is the root; ParentIndices
// links each nested error to its parent (-1 for the root).
type FailureInfo struct {
	Types         []string `json:"types"`
	Messages      []string `json:"messages"`
	StackTraces   []string `json:"stackTraces"`
	ParentIndices []int    `json:"parentIndices"`
}

// NewFailureInfo flattens err. Errors exposing Unwrap() []error contribute
// one entry per inner error.
func NewFailureInfo(err error) FailureInfo {
	var f FailureInfo
	if err != nil {
		f.add(err, -1)
	}
	return f
}

func (f *FailureInfo) add(err error, parent int) {
	idx := len(f.Types)
	f.Types = append(f.Types, typeName(err))
	f.Messages = append(f.Messages, err.Error())
	f.StackTraces = append(f.StackTraces, stackTrace(err))
	f.ParentIndices = append(f.ParentIndices, parent)
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range multi.Unwrap() {
			if inner != nil {
				f.add(inner, idx)
			}
		}
	}
}

// Message returns the root error message.
func (f FailureInfo) Message() string {
	if len(f.Messages) == 0 {
		return ""
	}
	return f.Messages[0]
}

// Type returns the root error type.
func (f FailureInfo) Type() string {
	if len(f.Types) == 0 {
		return ""
	}
	return f.Types[0]
}

func (f FailureInfo) String() string {
	var sb strings.Builder
	for i := range f.Types {
		depth := 0
		for p := f.ParentIndices[i]; p >= 0; p = f.ParentIndices[p] {
			depth++
		}
		fmt.Fprintf(&sb, "%s%s: %s\n", strings.Repeat("  ", depth), f.Types[i], f.Messages[i])
	}
	return sb.String()
}

// CauseOf classifies err.
func CauseOf(err error) FailureCause {
	var timeout *types.TimeoutError
	if errors.As(err, &timeout) {
		return CauseTimeout
	}
	var assertion interface{ AssertionFailure() bool }
	if errors.As(err, &assertion) && assertion.AssertionFailure() {
		return CauseAssertion
	}
	return CauseException
}

// typeName reports the type of the innermost pkg/errors cause, so that
// wrapping for stack traces does not hide the original type.
func typeName(err error) string {
	return fmt.Sprintf("%T", pkgerrors.Cause(err))
}

func stackTrace(err error) string {
	type stackTracer interface {
		StackTrace() pkgerrors.StackTrace
	}
	var st stackTracer
	if errors.As(err, &st) && len(st.StackTrace()) > 0 {
		return strings.TrimPrefix(fmt.Sprintf("%+v", st.StackTrace()), "\n")
	}
	return ""
}
