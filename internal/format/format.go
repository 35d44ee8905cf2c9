// Package format renders launch, job, and artifact tables for the CLI and
// the Markdown report, wrapping go-pretty behind a small builder.
package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode selects the rendering target.
type Mode int

const (
	ASCII    Mode = iota // fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ColumnAlign specifies the horizontal alignment for a column.
type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// ColumnConfig controls per-column formatting.
type ColumnConfig struct {
	Number   int         // 1-based column index
	Align    ColumnAlign // horizontal alignment
	MaxWidth int         // wrap content beyond this width (0 = unlimited)
}

// Table accumulates rows and renders them in the Mode set at creation.
type Table struct {
	writer table.Writer
	mode   Mode
}

// NewTable returns an empty table for the given Mode.
func NewTable(m Mode) *Table {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &Table{writer: w, mode: m}
}

// Header sets the column headers.
func (t *Table) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.writer.AppendHeader(row)
}

// Row appends a data row. Values render via fmt.Sprint.
func (t *Table) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.writer.AppendRow(row)
}

// Footer appends a footer row, e.g. totals.
func (t *Table) Footer(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.writer.AppendFooter(row)
}

// Columns applies per-column alignment and width limits.
func (t *Table) Columns(cfgs ...ColumnConfig) {
	out := make([]table.ColumnConfig, len(cfgs))
	for i, c := range cfgs {
		out[i] = table.ColumnConfig{
			Number:   c.Number,
			Align:    alignOf(c.Align),
			WidthMax: c.MaxWidth,
		}
	}
	t.writer.SetColumnConfigs(out)
}

// String renders the table.
func (t *Table) String() string {
	if t.mode == Markdown {
		return t.writer.RenderMarkdown()
	}
	return t.writer.Render()
}

func alignOf(a ColumnAlign) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignRight:
		return text.AlignRight
	case AlignCenter:
		return text.AlignCenter
	default:
		return text.AlignDefault
	}
}
