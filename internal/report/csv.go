package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cr2tools/caudal/internal/tabular"
)

// WriteCSV writes the cleaned frame as comma-separated text with a header
// row. Columns and row order follow the source frame.
func WriteCSV(f *tabular.Frame, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(f.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	cols := f.Columns()
	row := make([]string, len(cols))
	for i := 0; i < f.NumRows(); i++ {
		for j, c := range cols {
			row[j] = c.Cells[i]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
