// Package pipeline wires the four acquisition stages into one sequential
// run: fetch, resolve, identify, clean, then the CSV export and chart
// rendering. Stages never overlap; the first error aborts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cr2tools/caudal/internal/config"
	"github.com/cr2tools/caudal/internal/explorador"
	"github.com/cr2tools/caudal/internal/report"
	"github.com/cr2tools/caudal/internal/series"
	"github.com/cr2tools/caudal/internal/tabular"
)

// Options holds per-run settings that are not part of the static config.
type Options struct {
	// InputPath, when set, re-runs the pipeline from a previously
	// downloaded payload instead of hitting the network.
	InputPath string
	Logger    *slog.Logger
}

// Result summarizes a completed run.
type Result struct {
	CSVPath  string
	PlotPath string
	RawPath  string // empty on offline re-runs
	Roles    tabular.Roles
	Clean    tabular.CleanReport
	Stats    series.Stats
	Records  int
}

// Run executes the whole pipeline for one station and date window.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	start, err := cfg.StartTime()
	if err != nil {
		return nil, err
	}
	end, err := cfg.EndTime()
	if err != nil {
		return nil, err
	}

	res := &Result{}

	// Stage 1: fetch (or offline re-run from a cached payload).
	var data []byte
	if opts.InputPath != "" {
		data, err = os.ReadFile(opts.InputPath)
		if err != nil {
			return nil, fmt.Errorf("fetch: read input file: %w", err)
		}
		log.Info("using local payload", "path", opts.InputPath, "bytes", len(data))
	} else {
		client := explorador.NewClient(
			explorador.WithBaseURL(cfg.API.BaseURL),
			explorador.WithTimeout(cfg.Timeout()),
			explorador.WithDownloadTimeout(cfg.DownloadTimeout()),
		)
		q := explorador.Query{StationID: cfg.Station.ID, Start: start, End: end}
		log.Info("fetching streamflow export",
			"station", cfg.Station.ID, "from", cfg.Window.Start, "to", cfg.Window.End)

		payload, err := client.Fetch(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		data = payload.Data
		log.Info("downloaded payload", "bytes", len(data), "content_type", payload.ContentType)

		// Persist the raw bytes before any parsing so a failed resolve
		// still leaves the payload on disk for diagnosis and offline
		// re-runs.
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		res.RawPath = cfg.RawPath()
		if err := os.WriteFile(res.RawPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("cache raw payload: %w", err)
		}
	}

	// Stage 2: resolve the payload shape into a frame.
	frame, err := tabular.Resolve(data)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	log.Info("resolved payload",
		"kind", tabular.Sniff(data).String(), "rows", frame.NumRows(), "columns", frame.NumCols())

	// Stage 3: identify the date and value columns.
	roles, err := tabular.Identify(frame, cfg.Station.ValueColumn)
	if err != nil {
		var nve *tabular.NoValueColumnError
		if errors.As(err, &nve) {
			log.Error("no value column", "available", nve.Columns)
		}
		return nil, fmt.Errorf("identify: %w", err)
	}
	res.Roles = roles
	log.Info("identified columns", "date", orNone(roles.DateColumn), "value", roles.ValueColumn)

	// Stage 4: clean the value column.
	res.Clean = tabular.Clean(frame, roles)
	log.Info("cleaned value column",
		"rows", res.Clean.Rows,
		"missing", res.Clean.Missing,
		"missing_pct", fmt.Sprintf("%.2f", res.Clean.MissingFrac*100),
		"dropped", res.Clean.Dropped)

	// Cleaned tabular export.
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	res.CSVPath = cfg.CSVPath()
	if err := writeCSV(frame, res.CSVPath); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	log.Info("wrote cleaned csv", "path", res.CSVPath, "rows", frame.NumRows())

	// Timestamp materialization and date-window filter.
	ts := series.Materialize(frame, roles)
	if ts.Synthetic {
		log.Info("no usable date column, synthesizing daily dates",
			"start", series.SyntheticStart.Format("2006-01-02"))
	}
	windowed := ts.Window(start, end)
	if windowed.Len() < ts.Len() {
		log.Info("filtered to date window", "kept", windowed.Len(), "of", ts.Len())
	}
	res.Records = windowed.Len()
	res.Stats = windowed.Summarize()

	// Chart rendering.
	res.PlotPath = cfg.PlotPath()
	yearFrom, yearTo := windowed.YearRange(start, end)
	if err := renderChart(windowed, cfg.Station.Name, yearFrom, yearTo, res.PlotPath); err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	log.Info("wrote chart", "path", res.PlotPath, "records", res.Records)

	return res, nil
}

func writeCSV(frame *tabular.Frame, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := report.WriteCSV(frame, f); err != nil {
		return err
	}
	return f.Close()
}

func renderChart(ts *series.TimeSeries, station string, yearFrom, yearTo int, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := report.RenderChart(ts, station, yearFrom, yearTo, f); err != nil {
		return err
	}
	return f.Close()
}

func orNone(s string) string {
	if s == "" {
		return "(none, will synthesize)"
	}
	return s
}
