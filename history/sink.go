package history

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Sink records the outcome of every finished test case and writes them to
// the store when the assembly finishes.
type Sink struct {
	store   *Store
	runID   string
	log     log.Logger
	mu      sync.Mutex
	names   map[string]string
	started map[string]time.Time
	pending []Record
}

var _ messages.Sink = (*Sink)(nil)

// NewSink creates a sink writing to store under runID.
func NewSink(store *Store, runID string, logger log.Logger) *Sink {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Sink{
		store:   store,
		runID:   runID,
		log:     logger.New("component", "history"),
		names:   make(map[string]string),
		started: make(map[string]time.Time),
	}
}

func (s *Sink) OnMessage(msg messages.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case *messages.TestAssemblyStarting:
		if m.RunID != "" {
			s.runID = m.RunID
		}
	case *messages.TestCaseStarting:
		s.names[m.TestCase] = m.DisplayName
		s.started[m.TestCase] = time.Now()
	case *messages.TestCaseFinished:
		rec, err := s.next(m.TestCase, m.Summary)
		if err != nil {
			return true, err
		}
		s.pending = append(s.pending, rec)
	case *messages.TestAssemblyFinished:
		if err := s.store.PutAll(s.runID, s.pending); err != nil {
			return true, err
		}
		s.log.Info("Recorded case outcomes", "runID", s.runID, "cases", len(s.pending))
		s.pending = nil
	}
	return true, nil
}

func (s *Sink) next(caseID string, summary types.RunSummary) (Record, error) {
	prev, _, err := s.store.Get(caseID)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		CaseID:      caseID,
		DisplayName: s.names[caseID],
		Status:      summary.Status(),
		RunID:       s.runID,
		FinishedAt:  time.Now(),
		Duration:    time.Since(s.started[caseID]),
		Runs:        prev.Runs + 1,
	}
	switch {
	case rec.Failed():
		rec.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	case rec.Status == types.TestStatusSkip:
		rec.ConsecutiveFailures = prev.ConsecutiveFailures
	}
	delete(s.names, caseID)
	delete(s.started, caseID)
	return rec, nil
}
