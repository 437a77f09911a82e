package reporting

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Tree hierarchy symbols using box drawing characters
const (
	treeBranch     = "├── "
	treeLastBranch = "└── "
	treeContinue   = "│   "
	treeIndent     = "    "
)

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// getStatusString returns a consistent lowercase status string
func getStatusString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "pass"
	case types.TestStatusFail:
		return "fail"
	case types.TestStatusSkip:
		return "skip"
	case types.TestStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// nodeStats returns the summary of a node. Tests count themselves.
func nodeStats(n *Node) types.RunSummary {
	if !n.IsLeaf() {
		return n.Summary
	}
	s := types.RunSummary{Total: 1, Time: n.Duration}
	switch n.Status {
	case types.TestStatusFail, types.TestStatusError:
		s.Failed = 1
	case types.TestStatusSkip:
		s.Skipped = 1
	}
	return s
}

// visibleFunc decides which nodes a formatter renders.
type visibleFunc func(*Node) bool

// treePrefix returns the box-drawing prefix for n among the visible nodes.
// Nodes without a visible ancestor get no prefix.
func treePrefix(n *Node, visible visibleFunc) string {
	hasVisibleAncestor := false
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		hasVisibleAncestor = hasVisibleAncestor || visible(cur)
	}
	if !hasVisibleAncestor {
		return ""
	}
	var parentIsLast []bool
	for cur := n.Parent; cur.Parent != nil && cur.Parent.Type != NodeTypeAssembly; cur = cur.Parent {
		if visible(cur) {
			parentIsLast = append([]bool{isLastSibling(cur, visible)}, parentIsLast...)
		}
	}

	var sb strings.Builder
	for _, last := range parentIsLast {
		if last {
			sb.WriteString(treeIndent)
		} else {
			sb.WriteString(treeContinue)
		}
	}
	if isLastSibling(n, visible) {
		sb.WriteString(treeLastBranch)
	} else {
		sb.WriteString(treeBranch)
	}
	return sb.String()
}

// isLastSibling reports whether no visible sibling follows n.
func isLastSibling(n *Node, visible visibleFunc) bool {
	if n.Parent == nil {
		return true
	}
	seen := false
	for _, sibling := range n.Parent.Children {
		if sibling == n {
			seen = true
			continue
		}
		if seen && visible(sibling) {
			return false
		}
	}
	return true
}

// TableFormatter formats a result tree as an ASCII table
type TableFormatter struct {
	title          string
	showContainers bool
	showOrder      bool
}

// NewTableFormatter creates a table formatter. Containers are the collection,
// class, method and case rows above the tests.
func NewTableFormatter(title string, showContainers, showOrder bool) *TableFormatter {
	return &TableFormatter{
		title:          title,
		showContainers: showContainers,
		showOrder:      showOrder,
	}
}

func (f *TableFormatter) visible(n *Node) bool {
	if n.Type == NodeTypeAssembly {
		return false
	}
	return f.showContainers || n.IsLeaf()
}

// Format renders the tree.
func (f *TableFormatter) Format(tree *Tree) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(f.title)

	headers := table.Row{"TYPE", "NAME", "DURATION", "TESTS", "PASSED", "FAILED", "SKIPPED", "STATUS"}
	configs := []table.ColumnConfig{
		{Name: "TYPE", AutoMerge: true},
		{Name: "NAME", WidthMax: 200, WidthMaxEnforcer: text.WrapSoft},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
	}
	if f.showOrder {
		headers = append(table.Row{"ORDER"}, headers...)
		configs = append([]table.ColumnConfig{{Name: "ORDER", Align: text.AlignRight}}, configs...)
	}
	t.AppendHeader(headers)
	t.SetColumnConfigs(configs)

	tree.Walk(func(n *Node) bool {
		if f.visible(n) {
			f.addNodeRow(t, n)
		}
		return true
	})

	status := tree.Status()
	switch status {
	case types.TestStatusFail, types.TestStatusError:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleDefault)
	}

	footer := table.Row{
		"TOTAL",
		"",
		formatDuration(tree.Duration),
		tree.Summary.Total,
		tree.Summary.Passed(),
		tree.Summary.Failed,
		tree.Summary.Skipped,
		strings.ToUpper(getStatusString(status)),
	}
	if f.showOrder {
		footer = append(table.Row{""}, footer...)
	}
	t.AppendFooter(footer)

	t.Render()
	return buf.String(), nil
}

func (f *TableFormatter) addNodeRow(t table.Writer, n *Node) {
	stats := nodeStats(n)
	row := table.Row{
		typeLabel(n.Type),
		treePrefix(n, f.visible) + n.Name,
		formatDuration(n.Duration),
		stats.Total,
		stats.Passed(),
		stats.Failed,
		stats.Skipped,
		strings.ToUpper(getStatusString(n.Status)),
	}
	if f.showOrder {
		order := ""
		if n.IsLeaf() {
			order = fmt.Sprintf("%d", n.Order)
		}
		row = append(table.Row{order}, row...)
	}
	t.AppendRow(row)
}

func typeLabel(t NodeType) string {
	switch t {
	case NodeTypeCollection:
		return "Collection"
	case NodeTypeClass:
		return "Class"
	case NodeTypeMethod:
		return "Method"
	case NodeTypeCase:
		return "Case"
	case NodeTypeTest:
		return "Test"
	default:
		return "Unknown"
	}
}

// TextFormatter formats a result tree as plain text
type TextFormatter struct {
	includeContainers bool
	includeStats      bool
	includeDetails    bool
}

// NewTextFormatter creates a text formatter. Details add failure messages
// and captured output under failed tests.
func NewTextFormatter(includeContainers, includeStats, includeDetails bool) *TextFormatter {
	return &TextFormatter{
		includeContainers: includeContainers,
		includeStats:      includeStats,
		includeDetails:    includeDetails,
	}
}

func (f *TextFormatter) visible(n *Node) bool {
	if n.Type == NodeTypeAssembly {
		return false
	}
	return f.includeContainers || n.IsLeaf()
}

// Format renders the tree.
func (f *TextFormatter) Format(tree *Tree) (string, error) {
	var buf bytes.Buffer

	buf.WriteString("Test Results Summary\n")
	buf.WriteString(strings.Repeat("=", 50) + "\n\n")

	if f.includeStats {
		fmt.Fprintf(&buf, "Run ID: %s\n", tree.RunID)
		fmt.Fprintf(&buf, "Assembly: %s\n", tree.Assembly)
		fmt.Fprintf(&buf, "Seed: %d\n", tree.Seed)
		fmt.Fprintf(&buf, "Duration: %s\n", formatDuration(tree.Duration))
		fmt.Fprintf(&buf, "Total Tests: %d\n", tree.Summary.Total)
		fmt.Fprintf(&buf, "Passed: %d\n", tree.Summary.Passed())
		fmt.Fprintf(&buf, "Failed: %d\n", tree.Summary.Failed)
		fmt.Fprintf(&buf, "Skipped: %d\n", tree.Summary.Skipped)
		fmt.Fprintf(&buf, "Cleanup Failures: %d\n", tree.CleanupFailures)
		fmt.Fprintf(&buf, "Errors: %d\n", len(tree.Errors))
		fmt.Fprintf(&buf, "Pass Rate: %.1f%%\n", tree.PassRate())
		fmt.Fprintf(&buf, "Status: %s\n", strings.ToUpper(getStatusString(tree.Status())))
		buf.WriteString("\n")
	}

	buf.WriteString("Test Hierarchy:\n")
	buf.WriteString(strings.Repeat("-", 30) + "\n")
	tree.Walk(func(n *Node) bool {
		if f.visible(n) {
			f.writeNode(&buf, n)
		}
		return true
	})

	if len(tree.FailedTests) > 0 {
		buf.WriteString("\nFailed Tests:\n")
		buf.WriteString(strings.Repeat("-", 20) + "\n")
		for _, n := range tree.FailedTests {
			fmt.Fprintf(&buf, "- %s", n.Path())
			if f.includeDetails && n.Failure != nil {
				fmt.Fprintf(&buf, " (Error: %s)", n.Failure.Message())
			}
			buf.WriteString("\n")
		}
	}

	if len(tree.Errors) > 0 {
		buf.WriteString("\nErrors:\n")
		buf.WriteString(strings.Repeat("-", 20) + "\n")
		for _, e := range tree.Errors {
			fmt.Fprintf(&buf, "- %s: %s\n", e.Type(), e.Message())
		}
	}

	return buf.String(), nil
}

func (f *TextFormatter) writeNode(buf *bytes.Buffer, n *Node) {
	prefix := treePrefix(n, f.visible)
	line := fmt.Sprintf("%s%s %s", prefix, statusChar(n.Status), n.Name)

	if n.IsLeaf() {
		line += fmt.Sprintf(" (%s)", formatDuration(n.Duration))
	} else if f.includeStats {
		stats := nodeStats(n)
		line += fmt.Sprintf(" [%d tests, %d passed, %d failed]", stats.Total, stats.Passed(), stats.Failed)
	}
	buf.WriteString(line + "\n")

	if !f.includeDetails {
		return
	}
	indent := strings.Repeat(" ", len([]rune(prefix))+2)
	if n.Failure != nil {
		fmt.Fprintf(buf, "%sError: %s\n", indent, n.Failure.Message())
	}
	if n.Status == types.TestStatusSkip && n.Reason != "" {
		fmt.Fprintf(buf, "%sSkipped: %s\n", indent, n.Reason)
	}
	for _, c := range n.CleanupFailures {
		fmt.Fprintf(buf, "%sCleanup: %s\n", indent, c.Message())
	}
	if n.Failure != nil && n.Output != "" {
		for _, l := range strings.Split(strings.TrimRight(n.Output, "\n"), "\n") {
			fmt.Fprintf(buf, "%s| %s\n", indent, l)
		}
	}
}

// statusChar returns a character representing the test status
func statusChar(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓"
	case types.TestStatusFail:
		return "✗"
	case types.TestStatusSkip:
		return "⊝"
	case types.TestStatusError:
		return "⚠"
	default:
		return "?"
	}
}
