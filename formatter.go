package testkit

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testkit/reporting"
	"github.com/ethereum-optimism/infra/op-testkit/runner"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(result *RunResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a formatter writing to stdout.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    os.Stdout,
	}
}

// FormatResults prints the results table of a run, or the stability table
// of a flake-shake run.
func (f *ConsoleResultFormatter) FormatResults(result *RunResult) error {
	f.logger.Info("Printing results...")
	if result.FlakeShake != nil {
		return f.formatFlakeShake(result.FlakeShake)
	}
	if result.Tree == nil {
		return fmt.Errorf("run %s has no results", result.RunID)
	}
	title := fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration))
	out, err := reporting.NewTableFormatter(title, true, false).Format(result.Tree)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(f.out, out)
	return err
}

func (f *ConsoleResultFormatter) formatFlakeShake(report *runner.FlakeShakeReport) error {
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Flake-Shake Results (%d iterations)", report.Iterations))

	t.AppendHeader(table.Row{
		"Test", "Runs", "Passed", "Failed", "Skipped", "Pass Rate", "Avg Duration", "Recommendation",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Runs", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Pass Rate", Align: text.AlignRight},
		{Name: "Avg Duration", Align: text.AlignRight},
	})

	for _, test := range report.Tests {
		t.AppendRow(table.Row{
			test.TestName,
			test.TotalRuns,
			test.Passes,
			test.Failures,
			test.Skipped,
			fmt.Sprintf("%.1f%%", test.PassRate),
			formatDuration(test.AvgDuration),
			test.Recommendation,
		})
	}

	unstable := len(report.Unstable())
	if unstable == 0 {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.AppendFooter(table.Row{
		"TOTAL", report.TotalRuns, "", "", "", "", "",
		strings.ToUpper(fmt.Sprintf("%d unstable", unstable)),
	})

	t.Render()
	return nil
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
