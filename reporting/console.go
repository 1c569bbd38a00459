package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-unit/registry"
	"github.com/ethereum-optimism/infra/op-unit/types"
)

var (
	colorRunning  = text.Colors{text.FgYellow, text.Bold, text.Underline}
	colorRun      = text.Colors{text.FgYellow, text.Bold}
	colorPassed   = text.Colors{text.FgGreen, text.Bold}
	colorFailed   = text.Colors{text.FgRed, text.Bold}
	colorSkipped  = text.Colors{text.FgCyan, text.Bold}
	colorDisabled = text.Colors{text.FgYellow}
	colorSuite    = text.Colors{text.FgHiBlack, text.Bold}
	colorTest     = text.Colors{text.FgCyan}
)

func (r *Reporter) paint(s string, colors ...text.Color) string {
	if r.opts.NoColor {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

func (r *Reporter) testName(id types.FullID) string {
	return r.paint(id.Suite, colorSuite...) + " " + r.paint(id.Test, colorTest...)
}

func (r *Reporter) statusLine(tag string, colors text.Colors, id types.FullID) string {
	return fmt.Sprintf("%s: %s\n", r.paint(tag, colors...), r.testName(id))
}

func (r *Reporter) failureLines(tag string, id types.FullID, message string) string {
	var sb strings.Builder
	sb.WriteString(r.statusLine(tag, colorFailed, id))
	for _, line := range strings.Split(message, "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// PrintSummary prints the closing block of a run: the optional per-suite table, the
// counters and the PASSED/FAILED banner.
func (r *Reporter) PrintSummary() {
	var sb strings.Builder
	if r.opts.Outcome {
		sb.WriteString(r.renderTable())
		sb.WriteByte('\n')
	}

	t := r.Totals()
	fmt.Fprintf(&sb, "ran %d test(s) in %s\n", t.Ran(), formatDuration(r.Elapsed()))
	fmt.Fprintf(&sb, "%s test(s) passed\n", r.paint(fmt.Sprint(t.Passed), colorPassed...))
	if t.Disabled != 0 {
		fmt.Fprintf(&sb, "%s test(s) disabled\n", r.paint(fmt.Sprint(t.Disabled), colorDisabled...))
	}
	if n := t.Skipped(); n != 0 {
		fmt.Fprintf(&sb, "%s test(s) skipped\n", r.paint(fmt.Sprint(n), colorSkipped...))
	}
	if n := t.Unsuccessful(); n != 0 {
		fmt.Fprintf(&sb, "%s test(s) failed\n", r.paint(fmt.Sprint(n), colorFailed...))
	}

	if r.IsFailed() {
		fmt.Fprintf(&sb, "\t%s\n", r.paint("FAILED", colorFailed...))
	} else {
		fmt.Fprintf(&sb, "\t%s\n", r.paint("PASSED", colorPassed...))
	}
	r.write(sb.String())
}

// PrintTestList writes every registered test, one suite per line followed by its
// indented test names. The output is valid run-list input.
func PrintTestList(w io.Writer, reg *registry.Registry) error {
	var sb strings.Builder
	for _, s := range reg.Suites() {
		sb.WriteString(s.Name())
		sb.WriteByte('\n')
		for _, tc := range s.Tests() {
			sb.WriteString("  ")
			sb.WriteString(tc.Name())
			sb.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
