package reporting

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func (r *Reporter) renderTable() string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s (%s)", r.opts.Name, formatDuration(r.Elapsed())))

	t.AppendHeader(table.Row{
		"Suite", "Tests", "Passed", "Failed", "Errored", "Disabled", "Skipped", "Duration", "Status",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errored", Align: text.AlignRight},
		{Name: "Disabled", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, s := range r.reg.Suites() {
		c, _ := r.Suite(s.Name())
		t.AppendRow(table.Row{
			s.Name(),
			c.Size,
			c.Passed,
			c.Failed,
			c.Errored,
			c.Disabled,
			c.Skipped(),
			formatDuration(c.Duration),
			verdictString(c.Unsuccessful() == 0),
		})
	}

	total := r.Totals()
	t.AppendFooter(table.Row{
		"TOTAL",
		total.Size,
		total.Passed,
		total.Failed,
		total.Errored,
		total.Disabled,
		total.Skipped(),
		formatDuration(r.Elapsed()),
		verdictString(!r.IsFailed()),
	})

	switch {
	case r.opts.NoColor:
		t.SetStyle(table.StyleLight)
	case r.IsFailed():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	return t.Render()
}

func verdictString(passed bool) string {
	if passed {
		return "✓ pass"
	}
	return "✗ fail"
}

// formatDuration renders a duration in seconds with millisecond precision
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
