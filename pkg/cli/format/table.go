package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

// Table is a headed table rendered with pterm.
type Table struct {
	Headers []string
	Rows    [][]string
	// Empty is printed instead of the table when there are no rows.
	Empty string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// Append adds one row; missing cells are padded.
func (t *Table) Append(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	if len(t.Rows) == 0 {
		if t.Empty != "" {
			fmt.Fprintln(w, t.Empty)
		}
		return nil
	}
	data := append([][]string{t.Headers}, t.Rows...)
	out, err := pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderStyle(pterm.NewStyle(pterm.FgCyan, pterm.Bold)).
		WithData(data).
		Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(out, "\n"))
	return err
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
