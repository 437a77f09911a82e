package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// captureHandler records every log record as "msg key=value ...".
type captureHandler struct {
	mu      *sync.Mutex
	records *[]string
	attrs   []slog.Attr
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{mu: &sync.Mutex{}, records: &[]string{}}
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, sb.String())
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{mu: h.mu, records: h.records, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) matching(prefix string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range *h.records {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func TestProgressSinkReportsRunningTests(t *testing.T) {
	handler := newCaptureHandler()
	sink := NewProgressSink(log.NewLogger(handler), 20*time.Millisecond, 3)
	defer sink.Stop()

	publish := func(m messages.Message) {
		cont, err := sink.OnMessage(m)
		require.NoError(t, err)
		require.True(t, cont)
	}
	publish(&messages.TestAssemblyStarting{AssemblyName: "asm", StartTime: time.Now(), Seed: 1})
	publish(&messages.TestCollectionStarting{IDs: messages.IDs{Collection: "c1"}, DisplayName: "collection one"})
	publish(&messages.TestStarting{IDs: messages.IDs{Test: "t1"}, DisplayName: "Class.Quick"})
	publish(&messages.TestStarting{IDs: messages.IDs{Test: "t2"}, DisplayName: "Class.Slow"})
	publish(&messages.TestFailed{IDs: messages.IDs{Test: "t1"}})
	publish(&messages.TestFinished{IDs: messages.IDs{Test: "t1"}})

	require.Eventually(t, func() bool {
		return len(handler.matching("Progress update")) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	updates := handler.matching("Progress update")
	last := updates[len(updates)-1]
	assert.Contains(t, last, "completed=1")
	assert.Contains(t, last, "failed=1")
	assert.Contains(t, last, "numRunning=1")
	assert.Contains(t, last, "total=3")
	assert.Contains(t, last, "Class.Slow")
	assert.NotContains(t, last, "Class.Quick")

	publish(&messages.TestCollectionFinished{IDs: messages.IDs{Collection: "c1"}, Summary: types.RunSummary{Total: 2, Failed: 1}})
	publish(&messages.TestAssemblyFinished{WallTime: time.Second})
	completed := handler.matching("Completed collection")
	require.Len(t, completed, 1)
	assert.Contains(t, completed[0], "collection=collection one")
	require.Len(t, handler.matching("Completed test run"), 1)
}

func TestProgressSinkStop(t *testing.T) {
	handler := newCaptureHandler()
	sink := NewProgressSink(log.NewLogger(handler), 10*time.Millisecond, 0)
	sink.Stop()
	sink.Stop()
	time.Sleep(15 * time.Millisecond)

	before := len(handler.matching("Progress update"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(handler.matching("Progress update")), "no updates after Stop")
}

func TestProgressSinkDefaultInterval(t *testing.T) {
	sink := NewProgressSink(log.NewLogger(log.DiscardHandler()), 0, 0)
	defer sink.Stop()
	assert.Empty(t, sink.runningTests)
}

func TestFormatRunningTests(t *testing.T) {
	baseTime := time.Now()

	tests := []struct {
		name         string
		runningTests map[string]time.Time
		maxShow      int
		expected     string
	}{
		{
			name:         "empty map",
			runningTests: map[string]time.Time{},
			maxShow:      3,
			expected:     "",
		},
		{
			name: "single test",
			runningTests: map[string]time.Time{
				"TestOne": baseTime.Add(-2 * time.Second),
			},
			maxShow:  3,
			expected: "TestOne (2s)",
		},
		{
			name: "multiple tests sorted by duration",
			runningTests: map[string]time.Time{
				"TestOne":   baseTime.Add(-1 * time.Second),
				"TestTwo":   baseTime.Add(-3 * time.Second),
				"TestThree": baseTime.Add(-2 * time.Second),
			},
			maxShow:  3,
			expected: "TestTwo (3s), TestThree (2s), TestOne (1s)",
		},
		{
			name: "respects maxShow limit",
			runningTests: map[string]time.Time{
				"TestOne":   baseTime.Add(-1 * time.Second),
				"TestTwo":   baseTime.Add(-4 * time.Second),
				"TestThree": baseTime.Add(-3 * time.Second),
				"TestFour":  baseTime.Add(-2 * time.Second),
			},
			maxShow:  2,
			expected: "TestTwo (4s), TestThree (3s), +2 more",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatRunningTests(tt.runningTests, tt.maxShow)
			assert.Equal(t, tt.expected, result)
		})
	}
}
