package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
)

// ProgressSink is a message sink that periodically logs how far the run has
// progressed and which tests have been running the longest.
type ProgressSink struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex

	totalTests        int
	completedTests    int
	failedTests       int
	runningCollection map[string]string // collection ID -> display name
	assemblyStartTime time.Time

	// Track currently running tests
	testNames    map[string]string    // test ID -> display name
	runningTests map[string]time.Time // test ID -> start time
}

var _ messages.Sink = (*ProgressSink)(nil)

// NewProgressSink creates a progress sink reporting every updateInterval.
// totalTests may be zero when the number of tests is unknown.
func NewProgressSink(logger log.Logger, updateInterval time.Duration, totalTests int) *ProgressSink {
	if updateInterval == 0 {
		updateInterval = ProgressUpdateInterval
	}

	p := &ProgressSink{
		logger:            logger,
		ticker:            time.NewTicker(updateInterval),
		stopCh:            make(chan struct{}),
		totalTests:        totalTests,
		runningCollection: make(map[string]string),
		testNames:         make(map[string]string),
		runningTests:      make(map[string]time.Time),
	}

	// Start the progress reporting goroutine
	go p.progressReporter()

	return p
}

func (p *ProgressSink) OnMessage(msg messages.Message) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch m := msg.(type) {
	case *messages.TestAssemblyStarting:
		p.assemblyStartTime = m.StartTime
		p.logger.Info("Starting test run", "assembly", m.AssemblyName, "seed", m.Seed, "totalTests", p.totalTests)
	case *messages.TestCollectionStarting:
		p.runningCollection[m.Collection] = m.DisplayName
		p.logger.Debug("Starting collection", "collection", m.DisplayName)
	case *messages.TestCollectionFinished:
		p.logger.Info("Completed collection", "collection", p.runningCollection[m.Collection], "total", m.Summary.Total, "failed", m.Summary.Failed)
		delete(p.runningCollection, m.Collection)
	case *messages.TestStarting:
		p.testNames[m.Test] = m.DisplayName
		p.runningTests[m.Test] = time.Now()
		p.logger.Debug("Test started", "test", m.DisplayName, "runningTests", len(p.runningTests))
	case *messages.TestFailed:
		p.failedTests++
	case *messages.TestFinished:
		delete(p.runningTests, m.Test)
		p.completedTests++
		// Log individual test completion at debug level to avoid spam
		p.logger.Debug("Test completed", "test", p.testNames[m.Test], "completed", p.completedTests, "total", p.totalTests, "runningTests", len(p.runningTests))
		delete(p.testNames, m.Test)
	case *messages.TestAssemblyFinished:
		p.logger.Info("Completed test run", "completed", p.completedTests, "failed", p.failedTests, "duration", m.WallTime.Truncate(time.Second))
	}
	return true, nil
}

// progressReporter runs in a goroutine and periodically reports progress
func (p *ProgressSink) progressReporter() {
	for {
		select {
		case <-p.ticker.C:
			p.reportProgress()
		case <-p.stopCh:
			return
		}
	}
}

func (p *ProgressSink) reportProgress() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	running := make(map[string]time.Time, len(p.runningTests))
	for id, start := range p.runningTests {
		running[p.testNames[id]] = start
	}
	detailsStr := formatRunningTests(running, 3)

	logFields := []interface{}{
		"completed", p.completedTests,
		"failed", p.failedTests,
		"numRunning", len(p.runningTests),
		"longestRunning", detailsStr,
	}
	if p.totalTests > 0 {
		percentComplete := float64(p.completedTests) * 100.0 / float64(p.totalTests)
		logFields = append(logFields, "total", p.totalTests, "percent", fmt.Sprintf("%.1f%%", percentComplete))
	}
	if !p.assemblyStartTime.IsZero() {
		logFields = append(logFields, "elapsed", time.Since(p.assemblyStartTime).Truncate(time.Second))
	}

	p.logger.Info("Progress update", logFields...)
}

// Stop stops the periodic reporting. It is safe to call more than once.
func (p *ProgressSink) Stop() {
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.stopCh)
	})
}

// Helper function that formats running tests into a display string
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	// Sort running tests by duration (longest first)
	type runningTest struct {
		name     string
		duration time.Duration
	}

	var running []runningTest
	now := time.Now()
	for testName, startTime := range runningTests {
		running = append(running, runningTest{
			name:     testName,
			duration: now.Sub(startTime),
		})
	}

	sort.Slice(running, func(i, j int) bool {
		if running[i].duration != running[j].duration {
			return running[i].duration > running[j].duration
		}
		return running[i].name < running[j].name
	})

	// Format running tests string (limit to maxShow)
	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		duration := test.duration.Truncate(time.Second)
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, duration))
	}

	// Add indicator for additional tests not shown
	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}
