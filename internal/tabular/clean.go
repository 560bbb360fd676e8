package tabular

import (
	"math"
	"strconv"
)

// CleanReport summarizes what Clean did to the value column.
type CleanReport struct {
	Rows        int
	Missing     int
	MissingFrac float64
	Dropped     int
}

// Clean repairs missing entries in the value column in place. Interior gaps
// are linearly interpolated between the nearest valid neighbors by row
// position, trailing gaps are forward-filled from the last valid value, and
// leading gaps are backward-filled from the next valid value. Rows still
// missing a value after all three (possible only when the column has no
// valid entry at all) are dropped; surviving rows keep their order.
//
// Clean never fails. The raw cells of the value column are rewritten so that
// exports observe the repaired values.
func Clean(f *Frame, roles Roles) CleanReport {
	col := f.Column(roles.ValueColumn)
	rep := CleanReport{Rows: f.NumRows()}
	if col == nil || rep.Rows == 0 {
		return rep
	}

	values := col.Floats
	if values == nil {
		// Text column selected by override; parse what we can.
		values = make([]float64, len(col.Cells))
		for i, cell := range col.Cells {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				v = math.NaN()
			}
			values[i] = v
		}
		col.Kind = KindNumeric
		col.Floats = values
	}

	wasMissing := make([]bool, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			wasMissing[i] = true
			rep.Missing++
		}
	}
	rep.MissingFrac = float64(rep.Missing) / float64(rep.Rows)
	if rep.Missing == 0 {
		return rep
	}

	interpolateLinear(values)
	forwardFill(values)
	backwardFill(values)

	drop := make([]bool, len(values))
	anyDrop := false
	for i, v := range values {
		if math.IsNaN(v) {
			drop[i] = true
			anyDrop = true
			rep.Dropped++
		} else if wasMissing[i] {
			col.Cells[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	if anyDrop {
		f.DropRows(drop)
	}
	return rep
}

// forwardFill propagates the last valid value into following gaps. After
// interpolation this only reaches the trailing run.
func forwardFill(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
		} else {
			last = v
		}
	}
}

// backwardFill propagates the next valid value into preceding gaps, covering
// the leading run neither interpolation nor forward-fill can reach.
func backwardFill(values []float64) {
	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
		} else {
			next = values[i]
		}
	}
}

// interpolateLinear fills interior gaps by linear interpolation between the
// nearest valid neighbors, indexed by row position.
func interpolateLinear(values []float64) {
	prev := -1
	for i := 0; i < len(values); i++ {
		if !math.IsNaN(values[i]) {
			prev = i
			continue
		}
		// Find the next valid value.
		next := -1
		for j := i + 1; j < len(values); j++ {
			if !math.IsNaN(values[j]) {
				next = j
				break
			}
		}
		if prev < 0 || next < 0 {
			continue
		}
		step := (values[next] - values[prev]) / float64(next-prev)
		for k := i; k < next; k++ {
			values[k] = values[prev] + step*float64(k-prev)
		}
		i = next - 1
	}
}
