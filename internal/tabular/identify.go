package tabular

import (
	"fmt"
	"strings"
)

// Roles holds the resolved date and value columns for a frame. DateColumn is
// empty when the frame carries no recognizable date column; downstream
// synthesizes timestamps in that case.
type Roles struct {
	DateColumn  string
	ValueColumn string
}

// Substring sets for the ordered name heuristics. First match wins, ties
// broken by source column order.
var (
	dateTerms  = []string{"date", "time", "fecha", "dia"}
	valueTerms = []string{"q", "streamflow", "flow", "caudal", "discharge", "m3s", "m³/s", "valor"}

	// Spatial exports ship lat/lon alongside the value column; coordinate
	// names are excluded from value selection.
	coordTerms = []string{"longitud", "latitud", "lon", "lat", "x", "y"}
)

// NoValueColumnError is returned when no column can serve as the streamflow
// value column. It carries the available names so a caller can diagnose a
// naming mismatch.
type NoValueColumnError struct {
	Columns []string
}

func (e *NoValueColumnError) Error() string {
	return fmt.Sprintf("no streamflow value column found; available columns: %s",
		strings.Join(e.Columns, ", "))
}

// Identify selects the date and value columns of a frame.
//
// The date column matches any of {date, time, fecha, dia} as a
// case-insensitive substring; no match is not an error. The value column
// matches {q, streamflow, flow, caudal, discharge, m3s, m³/s, valor},
// excluding coordinate-named columns; failing that, the first numeric column
// that is neither the date column nor coordinate-named; as a last resort any
// remaining numeric column, coordinates included.
//
// A non-empty override short-circuits the value heuristics with an exact
// (case-insensitive) name match.
func Identify(f *Frame, override string) (Roles, error) {
	roles := Roles{}

	for _, c := range f.Columns() {
		if matchesAny(c.Name, dateTerms) {
			roles.DateColumn = c.Name
			break
		}
	}

	if override != "" {
		c := f.Column(override)
		if c == nil {
			return Roles{}, &NoValueColumnError{Columns: f.ColumnNames()}
		}
		roles.ValueColumn = c.Name
		return roles, nil
	}

	for _, c := range f.Columns() {
		if matchesAny(c.Name, valueTerms) && !isCoordinate(c.Name) {
			roles.ValueColumn = c.Name
			return roles, nil
		}
	}

	// Fall back to the first numeric column that is not the date column and
	// not a coordinate.
	for _, c := range f.Columns() {
		if c.Kind != KindNumeric || c.Name == roles.DateColumn || isCoordinate(c.Name) {
			continue
		}
		roles.ValueColumn = c.Name
		return roles, nil
	}

	// Documented last resort: when coordinates are the only numeric columns
	// there is nothing else to plot.
	for _, c := range f.Columns() {
		if c.Kind == KindNumeric && c.Name != roles.DateColumn {
			roles.ValueColumn = c.Name
			return roles, nil
		}
	}

	return Roles{}, &NoValueColumnError{Columns: f.ColumnNames()}
}

func matchesAny(name string, terms []string) bool {
	lower := strings.ToLower(name)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func isCoordinate(name string) bool {
	lower := strings.ToLower(name)
	for _, t := range coordTerms {
		// Short terms like "x" and "y" only disqualify exact names;
		// substring matching would reject almost everything.
		if len(t) <= 3 {
			if lower == t {
				return true
			}
			continue
		}
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
