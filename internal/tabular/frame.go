// Package tabular turns raw export payloads into a column-typed frame and
// prepares the streamflow column for plotting: payload sniffing and parsing,
// date/value column identification, and missing-value repair.
package tabular

import (
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred type of a column.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
)

func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

// Column is a single named column. Raw cells are always kept; numeric
// columns additionally carry parsed values with NaN marking missing entries.
type Column struct {
	Name   string
	Kind   Kind
	Cells  []string
	Floats []float64 // len == len(Cells) when Kind == KindNumeric, nil otherwise
}

// Missing reports whether the cell at row i holds no usable value.
func (c *Column) Missing(i int) bool {
	if c.Kind == KindNumeric {
		return math.IsNaN(c.Floats[i])
	}
	return isMissingCell(c.Cells[i])
}

// Frame is an ordered sequence of equal-length named columns.
type Frame struct {
	cols []*Column
}

// NewFrame builds a frame from a header row and data rows. Short rows are
// padded with empty cells so every column ends up the same length. Column
// types are inferred per column: numeric when every non-missing cell parses
// as a float and at least one does.
func NewFrame(header []string, rows [][]string) *Frame {
	f := &Frame{cols: make([]*Column, len(header))}
	for j, name := range header {
		col := &Column{
			Name:  strings.TrimSpace(name),
			Cells: make([]string, len(rows)),
		}
		for i, row := range rows {
			if j < len(row) {
				col.Cells[i] = strings.TrimSpace(row[j])
			}
		}
		col.infer()
		f.cols[j] = col
	}
	return f
}

// infer decides the column kind and fills Floats for numeric columns.
func (c *Column) infer() {
	numeric := false
	floats := make([]float64, len(c.Cells))
	for i, cell := range c.Cells {
		if isMissingCell(cell) {
			floats[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			c.Kind = KindText
			c.Floats = nil
			return
		}
		floats[i] = v
		numeric = true
	}
	if numeric {
		c.Kind = KindNumeric
		c.Floats = floats
	}
}

func isMissingCell(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "na", "nan", "null":
		return true
	}
	return false
}

// NumRows returns the shared row count of all columns.
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return len(f.cols[0].Cells)
}

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.cols) }

// Columns returns the columns in source order.
func (f *Frame) Columns() []*Column { return f.cols }

// ColumnNames returns the column names in source order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name, matched case-insensitively,
// or nil when absent.
func (f *Frame) Column(name string) *Column {
	for _, c := range f.cols {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// DropRows removes every row i for which drop[i] is true, preserving the
// relative order of the surviving rows across all columns.
func (f *Frame) DropRows(drop []bool) {
	for _, c := range f.cols {
		cells := c.Cells[:0]
		var floats []float64
		if c.Floats != nil {
			floats = c.Floats[:0]
		}
		for i, cell := range c.Cells {
			if i < len(drop) && drop[i] {
				continue
			}
			cells = append(cells, cell)
			if c.Floats != nil {
				floats = append(floats, c.Floats[i])
			}
		}
		c.Cells = cells
		if c.Floats != nil {
			c.Floats = floats
		}
	}
}
