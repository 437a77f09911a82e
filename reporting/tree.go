// Package reporting builds a result tree from run events and renders it as a
// table or a plain text summary.
package reporting

import (
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// NodeType is the level of a node in the result tree.
type NodeType string

const (
	NodeTypeAssembly   NodeType = "assembly"
	NodeTypeCollection NodeType = "collection"
	NodeTypeClass      NodeType = "class"
	NodeTypeMethod     NodeType = "method"
	NodeTypeCase       NodeType = "case"
	NodeTypeTest       NodeType = "test"
)

// Node is one scope of the run.
type Node struct {
	ID       string
	Type     NodeType
	Name     string
	Status   types.TestStatus
	Duration time.Duration
	Summary  types.RunSummary
	// Reason is the skip reason of a skipped test or case.
	Reason  string
	Failure *messages.FailureInfo
	// Output is the captured test output with ANSI escapes removed.
	Output          string
	CleanupFailures []messages.FailureInfo
	Order           int
	Parent          *Node
	Children        []*Node
	Depth           int
}

// Path returns the names from the first node below the assembly down to n.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil && cur.Type != NodeTypeAssembly; cur = cur.Parent {
		parts = append([]string{cur.Name}, parts...)
	}
	return strings.Join(parts, " / ")
}

// IsLeaf reports whether n is a test.
func (n *Node) IsLeaf() bool {
	return n.Type == NodeTypeTest
}

// Tree is the result of one assembly run.
type Tree struct {
	RunID    string
	Assembly string
	Seed     uint64
	Start    time.Time
	Duration time.Duration
	Summary  types.RunSummary
	Root     *Node
	// FailedTests lists failed tests in the order they finished.
	FailedTests []*Node
	// CleanupFailures counts cleanup failures at every level.
	CleanupFailures int
	// Errors counts failures not attributable to a test.
	Errors      []messages.FailureInfo
	Diagnostics []string
	nodes       map[string]*Node
}

func newTree() *Tree {
	return &Tree{nodes: make(map[string]*Node)}
}

// Status summarises the whole run. Cleanup failures and engine errors fail
// the run even when every test passed.
func (t *Tree) Status() types.TestStatus {
	if t.CleanupFailures > 0 || len(t.Errors) > 0 {
		return types.TestStatusError
	}
	return t.Summary.Status()
}

// PassRate is the percentage of run tests that passed, not counting skipped ones.
func (t *Tree) PassRate() float64 {
	ran := t.Summary.Total - t.Summary.Skipped
	if ran <= 0 {
		return 0
	}
	return float64(t.Summary.Passed()) / float64(ran) * 100
}

// Node returns the node with the given unique ID.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Walk visits nodes depth-first in the order they started. Returning false
// skips the node's children.
func (t *Tree) Walk(fn func(*Node) bool) {
	if t.Root == nil {
		return
	}
	var walk func(*Node)
	walk = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
}

// scope returns the deepest ID set in ids with its node type.
func scope(ids messages.IDs) (string, NodeType) {
	switch {
	case ids.Test != "":
		return ids.Test, NodeTypeTest
	case ids.TestCase != "":
		return ids.TestCase, NodeTypeCase
	case ids.Method != "":
		return ids.Method, NodeTypeMethod
	case ids.Class != "":
		return ids.Class, NodeTypeClass
	case ids.Collection != "":
		return ids.Collection, NodeTypeCollection
	default:
		return ids.Assembly, NodeTypeAssembly
	}
}

// parentID returns the ID one level above the scope of ids.
func parentID(ids messages.IDs) string {
	switch {
	case ids.Test != "":
		return ids.TestCase
	case ids.TestCase != "":
		return ids.Method
	case ids.Method != "":
		return ids.Class
	case ids.Class != "":
		return ids.Collection
	case ids.Collection != "":
		return ids.Assembly
	default:
		return ""
	}
}

func (t *Tree) start(ids messages.IDs, name string) *Node {
	id, typ := scope(ids)
	n := &Node{ID: id, Type: typ, Name: name, Order: len(t.nodes)}
	if parent, ok := t.nodes[parentID(ids)]; ok {
		n.Parent = parent
		n.Depth = parent.Depth + 1
		parent.Children = append(parent.Children, n)
	}
	if typ == NodeTypeAssembly {
		t.Root = n
	}
	t.nodes[id] = n
	return n
}

func (t *Tree) finish(ids messages.IDs, summary types.RunSummary) {
	id, _ := scope(ids)
	if n, ok := t.nodes[id]; ok {
		n.Summary = summary
		n.Duration = summary.Time
		n.Status = summary.Status()
	}
}

func (t *Tree) apply(msg messages.Message) {
	switch m := msg.(type) {
	case *messages.TestAssemblyStarting:
		n := t.start(m.IDs, m.AssemblyName)
		n.Status = types.TestStatusPass
		t.RunID = m.RunID
		t.Assembly = m.AssemblyName
		t.Seed = m.Seed
		t.Start = m.StartTime
	case *messages.TestAssemblyFinished:
		t.finish(m.IDs, m.Summary)
		t.Summary = m.Summary
		t.Duration = m.WallTime
	case *messages.TestCollectionStarting:
		t.start(m.IDs, m.DisplayName)
	case *messages.TestCollectionFinished:
		t.finish(m.IDs, m.Summary)
	case *messages.TestClassStarting:
		t.start(m.IDs, m.ClassName)
	case *messages.TestClassFinished:
		t.finish(m.IDs, m.Summary)
	case *messages.TestMethodStarting:
		t.start(m.IDs, m.MethodName)
	case *messages.TestMethodFinished:
		t.finish(m.IDs, m.Summary)
	case *messages.TestCaseStarting:
		n := t.start(m.IDs, m.DisplayName)
		n.Reason = m.SkipReason
	case *messages.TestCaseFinished:
		t.finish(m.IDs, m.Summary)
	case *messages.TestStarting:
		t.start(m.IDs, m.DisplayName)
	case *messages.TestPassed:
		t.result(m.IDs, types.TestStatusPass, m.ExecutionTime, m.Output, nil, "")
	case *messages.TestFailed:
		failure := m.Failure
		n := t.result(m.IDs, types.TestStatusFail, m.ExecutionTime, m.Output, &failure, "")
		if n != nil {
			t.FailedTests = append(t.FailedTests, n)
		}
	case *messages.TestSkipped:
		t.result(m.IDs, types.TestStatusSkip, 0, "", nil, m.Reason)
	case *messages.TestAssemblyCleanupFailure:
		t.cleanupFailure(m.IDs, m.Failure)
	case *messages.TestCollectionCleanupFailure:
		t.cleanupFailure(m.IDs, m.Failure)
	case *messages.TestClassCleanupFailure:
		t.cleanupFailure(m.IDs, m.Failure)
	case *messages.TestMethodCleanupFailure:
		t.cleanupFailure(m.IDs, m.Failure)
	case *messages.TestCaseCleanupFailure:
		t.cleanupFailure(m.IDs, m.Failure)
	case *messages.TestCleanupFailure:
		t.cleanupFailure(m.IDs, m.Failure)
	case *messages.ErrorMessage:
		t.Errors = append(t.Errors, m.Failure)
	case *messages.DiagnosticMessage:
		t.Diagnostics = append(t.Diagnostics, m.Message)
	}
}

func (t *Tree) result(ids messages.IDs, status types.TestStatus, d time.Duration, output string, failure *messages.FailureInfo, reason string) *Node {
	n, ok := t.nodes[ids.Test]
	if !ok {
		return nil
	}
	n.Status = status
	n.Duration = d
	n.Output = stripansi.Strip(output)
	n.Failure = failure
	n.Reason = reason
	return n
}

func (t *Tree) cleanupFailure(ids messages.IDs, failure messages.FailureInfo) {
	t.CleanupFailures++
	id, _ := scope(ids)
	if n, ok := t.nodes[id]; ok {
		n.CleanupFailures = append(n.CleanupFailures, failure)
	}
}
