// Package report renders the pipeline outputs: the streamflow PNG chart and
// the cleaned tabular CSV export.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/cr2tools/caudal/internal/series"
)

// ErrEmptySeries is returned when there is nothing to plot.
var ErrEmptySeries = errors.New("no observations to plot")

var (
	steelblue = drawing.Color{R: 70, G: 130, B: 180, A: 204}
	wheat     = drawing.Color{R: 245, G: 222, B: 179, A: 190}
)

// RenderChart writes a PNG line chart of the series to w: thin steelblue
// line, "Date" / "Streamflow (m³/s)" axis labels, a title carrying the
// station name and year range, and a stats box in the top-left corner.
// A single observation renders as a lone dot.
func RenderChart(ts *series.TimeSeries, station string, yearFrom, yearTo int, w io.Writer) error {
	if ts.Len() == 0 {
		return ErrEmptySeries
	}

	style := chart.Style{
		StrokeColor: steelblue,
		StrokeWidth: 1.0,
	}

	st := ts.Summarize()
	graph := chart.Chart{
		Title:  fmt.Sprintf("%s Station Streamflow (%d-%d)", station, yearFrom, yearTo),
		Width:  1600,
		Height: 600,
		XAxis: chart.XAxis{
			Name: "Date",
		},
		YAxis: chart.YAxis{
			Name: "Streamflow (m³/s)",
		},
	}

	if ts.Len() == 1 {
		// A lone observation gives the axes no span to scale to; pad both
		// ranges around it and mark the point with a dot.
		style.DotWidth = 4
		style.DotColor = steelblue
		t0 := ts.Timestamps[0]
		v := ts.Values[0]
		graph.XAxis.Range = &chart.ContinuousRange{
			Min: float64(t0.AddDate(0, 0, -1).UnixNano()),
			Max: float64(t0.AddDate(0, 0, 1).UnixNano()),
		}
		graph.YAxis.Range = &chart.ContinuousRange{Min: v - 1, Max: v + 1}
	}

	graph.Series = []chart.Series{
		chart.TimeSeries{
			Name:    station,
			XValues: ts.Timestamps,
			YValues: ts.Values,
			Style:   style,
		},
	}
	graph.Elements = []chart.Renderable{statsBox(st)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// statsBox draws the summary overlay in the top-left of the plot area.
func statsBox(st series.Stats) chart.Renderable {
	return func(r chart.Renderer, canvasBox chart.Box, defaults chart.Style) {
		lines := []string{
			fmt.Sprintf("Records: %d", st.Count),
			fmt.Sprintf("Min: %.2f m³/s", st.Min),
			fmt.Sprintf("Max: %.2f m³/s", st.Max),
			fmt.Sprintf("Mean: %.2f m³/s", st.Mean),
			fmt.Sprintf("Median: %.2f m³/s", st.Median),
		}

		if font, err := chart.GetDefaultFont(); err == nil {
			r.SetFont(font)
		}
		r.SetFontSize(11)

		const lineHeight = 16
		const pad = 8
		maxWidth := 0
		for _, line := range lines {
			if w := r.MeasureText(line).Width(); w > maxWidth {
				maxWidth = w
			}
		}

		box := chart.Box{
			Left:   canvasBox.Left + 12,
			Top:    canvasBox.Top + 12,
			Right:  canvasBox.Left + 12 + maxWidth + 2*pad,
			Bottom: canvasBox.Top + 12 + len(lines)*lineHeight + 2*pad,
		}
		chart.Draw.Box(r, box, chart.Style{
			FillColor:   wheat,
			StrokeColor: drawing.Color{R: 160, G: 140, B: 100, A: 255},
			StrokeWidth: 1.0,
		})

		r.SetFontColor(chart.ColorBlack)
		y := box.Top + pad + lineHeight - 4
		for _, line := range lines {
			r.Text(line, box.Left+pad, y)
			y += lineHeight
		}
	}
}
