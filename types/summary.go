package types

import (
	"fmt"
	"time"
)

// RunSummary counts the tests run within a scope. Summaries are additive:
// a parent scope's summary is the sum of its children.
type RunSummary struct {
	Total   int
	Failed  int
	Skipped int
	Time    time.Duration
}

// Aggregate adds other into s.
func (s *RunSummary) Aggregate(other RunSummary) {
	s.Total += other.Total
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Time += other.Time
}

// Passed returns the number of tests that neither failed nor were skipped.
func (s RunSummary) Passed() int {
	return s.Total - s.Failed - s.Skipped
}

// Status summarises the scope as a single outcome.
func (s RunSummary) Status() TestStatus {
	switch {
	case s.Failed > 0:
		return TestStatusFail
	case s.Total > 0 && s.Skipped == s.Total:
		return TestStatusSkip
	default:
		return TestStatusPass
	}
}

func (s RunSummary) String() string {
	return fmt.Sprintf("total=%d passed=%d failed=%d skipped=%d time=%s",
		s.Total, s.Passed(), s.Failed, s.Skipped, s.Time)
}
