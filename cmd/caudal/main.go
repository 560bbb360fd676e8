// caudal — streamflow export, cleaning and plotting for CR2 explorador
// gauging stations.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cr2tools/caudal/internal/config"
	"github.com/cr2tools/caudal/internal/pipeline"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "caudal",
	Short: "caudal — daily streamflow download, cleaning and plotting",
	Long: `caudal fetches daily mean streamflow for a single gauging station
from the CR2 explorador service, reconciles whatever payload format the
service answers with, repairs missing observations, and writes a cleaned
CSV plus a PNG chart.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlagOverrides(cmd)
		setupLogging(cmd)
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
}

// applyFlagOverrides lets run flags win over the config file.
func applyFlagOverrides(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetString("station"); v != "" {
		cfg.Station.ID = v
	}
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.Station.Name = v
	}
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		cfg.Window.Start = v
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		cfg.Window.End = v
	}
	if v, _ := cmd.Flags().GetString("out-dir"); v != "" {
		cfg.Output.Dir = v
	}
	if v, _ := cmd.Flags().GetString("value-column"); v != "" {
		cfg.Station.ValueColumn = v
	}
}

func setupLogging(cmd *cobra.Command) {
	level := cfg.Logging.Level
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("caudal %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full download-clean-plot pipeline",
	Long: `Run the full pipeline: download the station export (or re-use a
previously downloaded payload via --input), normalize it into a table,
identify the date and streamflow columns, repair missing values, and write
the cleaned CSV and the chart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")

		res, err := pipeline.Run(cmd.Context(), cfg, pipeline.Options{
			InputPath: input,
			Logger:    slog.Default(),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Station %s (%s): %d records plotted\n",
			cfg.Station.Name, cfg.Station.ID, res.Records)
		fmt.Printf("  value column: %s", res.Roles.ValueColumn)
		if res.Roles.DateColumn != "" {
			fmt.Printf("  date column: %s", res.Roles.DateColumn)
		}
		fmt.Println()
		fmt.Printf("  missing repaired: %d of %d (%.2f%%), rows dropped: %d\n",
			res.Clean.Missing, res.Clean.Rows, res.Clean.MissingFrac*100, res.Clean.Dropped)
		fmt.Printf("  min %.2f / max %.2f / mean %.2f / median %.2f m³/s\n",
			res.Stats.Min, res.Stats.Max, res.Stats.Mean, res.Stats.Median)
		fmt.Printf("  cleaned CSV: %s\n", res.CSVPath)
		fmt.Printf("  chart:       %s\n", res.PlotPath)
		if res.RawPath != "" {
			fmt.Printf("  raw payload: %s\n", res.RawPath)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("station", "", "station id override")
	runCmd.Flags().String("name", "", "station display name override")
	runCmd.Flags().String("from", "", "window start (YYYY-MM-DD)")
	runCmd.Flags().String("to", "", "window end (YYYY-MM-DD)")
	runCmd.Flags().String("input", "", "skip the network and resolve a previously downloaded payload file")
	runCmd.Flags().String("out-dir", "", "output directory override")
	runCmd.Flags().String("value-column", "", "exact value column name, bypassing the heuristics")
}
