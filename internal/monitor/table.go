package monitor

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteTable renders changes as a table with one row per change, followed by
// the change count in the footer.
func WriteTable(w io.Writer, changes []Change) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ISIN", "Change", "Field", "Old", "New"})

	for _, c := range changes {
		if c.Type == ChangeModified {
			t.AppendRow(table.Row{c.ISIN, c.Type, c.Field, display(c.OldValue), display(c.NewValue)})
			continue
		}
		t.AppendRow(table.Row{c.ISIN, c.Type, "", "", ""})
	}

	t.AppendFooter(table.Row{"", "", "", "Total", fmt.Sprintf("%d change(s)", len(changes))})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
