package runner

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// outputSlot marks the constructor argument that receives the per-test
// output helper.
type outputSlot struct{}

// testOutput captures the text written by one test and publishes each line
// as a TestOutput event while the test runs.
type testOutput struct {
	state *runState
	ids   messages.IDs

	mu     sync.Mutex
	buf    strings.Builder
	closed bool
}

var _ types.TestOutput = (*testOutput)(nil)

func newTestOutput(state *runState, ids messages.IDs) *testOutput {
	return &testOutput{state: state, ids: ids}
}

// WriteLine appends a line. Writes after the test finished are dropped.
func (o *testOutput) WriteLine(format string, args ...any) {
	line := fmt.Sprintf(format, args...) + "\n"
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.state.log.Warn("Dropping output written after the test finished", "test", o.ids.Test)
		return
	}
	o.buf.WriteString(line)
	o.mu.Unlock()
	o.state.publishDetached(&messages.TestOutput{IDs: o.ids, Output: line})
}

func (o *testOutput) Output() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *testOutput) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}
