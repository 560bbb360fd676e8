// Package series holds the canonical (timestamp, value) time series produced
// by the pipeline: timestamp materialization from a frame, date-window
// filtering, and the summary statistics shown on the chart.
package series

import (
	"math"
	"sort"
	"time"

	"github.com/cr2tools/caudal/internal/tabular"
)

// SyntheticStart is the first timestamp of a synthesized daily sequence,
// used when the source has no usable date column.
var SyntheticStart = time.Date(1960, time.January, 1, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order for every date cell.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02-01-2006",
	"01/02/2006",
	"2006",
}

// TimeSeries is an ordered sequence of (timestamp, value) pairs in source
// row order. A zero timestamp marks a row whose date cell did not parse;
// such rows survive here but are dropped by Window.
type TimeSeries struct {
	Timestamps []time.Time
	Values     []float64
	Synthetic  bool // timestamps were generated, not parsed
}

// Len returns the number of observations.
func (s *TimeSeries) Len() int { return len(s.Values) }

// Materialize builds the time series for a cleaned frame. When the frame has
// a date column, each cell is parsed under the known layouts; cells that
// parse under none become zero (undefined) timestamps. When there is no date
// column, or not a single cell parses, timestamps are synthesized as
// consecutive daily steps from 1960-01-01 in row order.
//
// Timestamps taken from a date column are not checked for monotonicity;
// order follows the source rows.
func Materialize(f *tabular.Frame, roles tabular.Roles) *TimeSeries {
	value := f.Column(roles.ValueColumn)
	n := f.NumRows()

	ts := &TimeSeries{
		Timestamps: make([]time.Time, n),
		Values:     make([]float64, n),
	}
	if value != nil && value.Floats != nil {
		copy(ts.Values, value.Floats)
	}

	var date *tabular.Column
	if roles.DateColumn != "" {
		date = f.Column(roles.DateColumn)
	}

	parsedAny := false
	if date != nil {
		for i, cell := range date.Cells {
			if t, ok := parseDate(cell); ok {
				ts.Timestamps[i] = t
				parsedAny = true
			}
		}
	}
	if !parsedAny {
		for i := range ts.Timestamps {
			ts.Timestamps[i] = SyntheticStart.AddDate(0, 0, i)
		}
		ts.Synthetic = true
	}
	return ts
}

func parseDate(cell string) (time.Time, bool) {
	if cell == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Window returns the observations with start <= timestamp <= end, dropping
// rows with undefined timestamps. When the filter would leave nothing, the
// receiver is returned unchanged so the caller still has something to plot.
func (s *TimeSeries) Window(start, end time.Time) *TimeSeries {
	out := &TimeSeries{Synthetic: s.Synthetic}
	for i, t := range s.Timestamps {
		if t.IsZero() || t.Before(start) || t.After(end) {
			continue
		}
		out.Timestamps = append(out.Timestamps, t)
		out.Values = append(out.Values, s.Values[i])
	}
	if out.Len() == 0 {
		return s
	}
	return out
}

// YearRange returns the first and last year covered by defined timestamps,
// falling back to the requested window years when none are defined.
func (s *TimeSeries) YearRange(fallbackStart, fallbackEnd time.Time) (int, int) {
	first, last := 0, 0
	for _, t := range s.Timestamps {
		if t.IsZero() {
			continue
		}
		y := t.Year()
		if first == 0 || y < first {
			first = y
		}
		if y > last {
			last = y
		}
	}
	if first == 0 {
		return fallbackStart.Year(), fallbackEnd.Year()
	}
	return first, last
}

// Stats are the summary figures shown in the chart overlay box.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
}

// Summarize computes summary statistics over the series values.
func (s *TimeSeries) Summarize() Stats {
	st := Stats{Count: len(s.Values)}
	if st.Count == 0 {
		st.Min, st.Max, st.Mean, st.Median = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return st
	}

	st.Min, st.Max = s.Values[0], s.Values[0]
	sum := 0.0
	for _, v := range s.Values {
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		sum += v
	}
	st.Mean = sum / float64(st.Count)

	sorted := make([]float64, st.Count)
	copy(sorted, s.Values)
	sort.Float64s(sorted)
	if st.Count%2 == 0 {
		st.Median = (sorted[st.Count/2-1] + sorted[st.Count/2]) / 2
	} else {
		st.Median = sorted[st.Count/2]
	}
	return st
}
