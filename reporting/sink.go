package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
)

// SummaryFile is the name of the text summary written into the output directory.
const SummaryFile = "summary.log"

// TreeSink builds a result tree from the events of one run.
type TreeSink struct {
	mu   sync.Mutex
	tree *Tree
}

var _ messages.Sink = (*TreeSink)(nil)

// NewTreeSink creates an empty tree sink.
func NewTreeSink() *TreeSink {
	return &TreeSink{tree: newTree()}
}

func (s *TreeSink) OnMessage(msg messages.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.apply(msg)
	return true, nil
}

// Tree returns the tree built so far. It must not be read while the run
// is still publishing.
func (s *TreeSink) Tree() *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// TextSummarySink writes a text summary of the run into a directory when
// the assembly finishes.
type TextSummarySink struct {
	*TreeSink
	formatter *TextFormatter
	outputDir string
}

// NewTextSummarySink creates a sink writing outputDir/summary.log.
func NewTextSummarySink(outputDir string, includeDetails bool) *TextSummarySink {
	return &TextSummarySink{
		TreeSink:  NewTreeSink(),
		formatter: NewTextFormatter(false, true, includeDetails),
		outputDir: outputDir,
	}
}

func (s *TextSummarySink) OnMessage(msg messages.Message) (bool, error) {
	if _, err := s.TreeSink.OnMessage(msg); err != nil {
		return true, err
	}
	if _, ok := msg.(*messages.TestAssemblyFinished); !ok {
		return true, nil
	}
	return true, s.write()
}

func (s *TextSummarySink) write() error {
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.outputDir, err)
	}
	content, err := s.formatter.Format(s.Tree())
	if err != nil {
		return fmt.Errorf("failed to format text summary: %w", err)
	}
	summaryFile := filepath.Join(s.outputDir, SummaryFile)
	if err := os.WriteFile(summaryFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}
