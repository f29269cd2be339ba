package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/chemsim/internal/automation"
	"github.com/san-kum/chemsim/internal/config"
	"github.com/san-kum/chemsim/internal/export"
	"github.com/san-kum/chemsim/internal/logger"
	"github.com/san-kum/chemsim/internal/metrics"
	"github.com/san-kum/chemsim/internal/storage"
	"github.com/san-kum/chemsim/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	mechName   string
	solverName string
	dt         float64
	duration   float64
	cells      int
	fallback   bool
	noSave     bool
	logLevel   string
	logFormat  string
	// plot
	species []string
	width   int
	height  int
	// bench
	workers int
	steps   int
	// live
	frameRate int
	theme     string
	// mechanism, export
	outFile string
	svgFile string
	logY    bool
	// sweep
	params       []string
	target       string
	sweepWorkers int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "chemsim",
		Short:        "atmospheric chemistry box-model solver",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".chemsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a box model",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot stored concentrations",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&species, "species", nil, "species to plot (default: all)")
	plotCmd.Flags().IntVar(&width, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&height, "height", 15, "plot height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json or svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&svgFile, "svg", "", "write an svg chart to this file instead of json")
	exportCmd.Flags().StringSliceVar(&species, "species", nil, "species to chart (default: all)")
	exportCmd.Flags().BoolVar(&logY, "log", false, "log10 concentration axis")

	presetsCmd := &cobra.Command{
		Use:   "presets [mechanism]",
		Short: "list mechanisms and run presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "show solver backends and gpu availability",
		RunE:  showBackends,
	}

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "solve independent states concurrently on every cpu backend",
		RunE:  benchBackends,
	}
	addRunFlags(benchCmd)
	benchCmd.Flags().IntVar(&workers, "workers", 4, "concurrent solver/state pairs per backend")
	benchCmd.Flags().IntVar(&steps, "steps", 100, "solves per pair")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a box model with a live view",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "steps per second")
	liveCmd.Flags().StringVar(&theme, "theme", "ocean", "color theme (ocean, minimal, retro)")

	mechanismCmd := &cobra.Command{
		Use:   "mechanism [name|file]",
		Short: "print a mechanism as yaml",
		Args:  cobra.ExactArgs(1),
		RunE:  showMechanism,
	}
	mechanismCmd.Flags().StringVarP(&outFile, "out", "o", "", "write to file instead of stdout")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario]",
		Short: "run every step of a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "grid search rate parameters or initial concentrations for a target",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&params, "param", nil, "name=v1,v2,... or name=lo:hi:n (log spaced), repeatable")
	sweepCmd.Flags().StringVar(&target, "target", "", "species=value to reach at the end of the run")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "concurrent runs (default: GOMAXPROCS)")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, presetsCmd, backendsCmd, benchCmd, liveCmd, mechanismCmd, batchCmd, sweepCmd)
	return rootCmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&mechName, "mechanism", config.DefaultMechanism, "preset mechanism name or yaml file")
	cmd.Flags().StringVar(&solverName, "solver", config.DefaultSolver, "solver type")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "time step [s]")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration [s]")
	cmd.Flags().IntVar(&cells, "cells", config.DefaultCells, "number of grid cells")
	cmd.Flags().BoolVar(&fallback, "fallback", false, "use the cpu backend when the gpu backend is unavailable")
}

// loadConfig resolves preset, then config file, then flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(mechName, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(mechName))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("mechanism") || (preset == "" && configFile == "") {
		cfg.Mechanism = mechName
	}
	if flags.Changed("solver") {
		cfg.Solver = solverName
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("cells") {
		cfg.Cells = cells
	}
	if flags.Changed("fallback") {
		cfg.FallbackToCPU = fallback
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	registry := prometheus.NewRegistry()
	solveMetrics, err := metrics.NewSolveMetrics("chemsim", registry)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s on %s...\n", cfg.Mechanism, cfg.Solver)
	outcome, err := automation.Execute(ctx, cfg, automation.Options{Logger: log, Observer: solveMetrics})
	if err != nil {
		return err
	}
	if outcome.Solver != outcome.Requested {
		fmt.Printf("note: %s unavailable, used %s\n", outcome.Requested, outcome.Solver)
	}
	fmt.Printf("completed in %v\n", outcome.Elapsed)

	if !noSave {
		runID, err := saveOutcome(outcome)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	printOutcome(outcome)

	fmt.Println("\nsolver:")
	return printSolveMetrics(registry)
}

func saveOutcome(outcome *automation.Outcome) (string, error) {
	cfg := outcome.Config
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	return st.Save(storage.RunMetadata{
		Mechanism:  outcome.Mechanism,
		Solver:     outcome.Solver.String(),
		Requested:  outcome.Requested.String(),
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Cells:      cfg.Cells,
		Conditions: cfg.Conditions,
	}, outcome.Result)
}

func printOutcome(outcome *automation.Outcome) {
	result := outcome.Result
	fmt.Printf("steps: %d\n", result.StepsTaken)
	for _, e := range result.Errors {
		fmt.Printf("failure: %v\n", e)
	}

	fmt.Println("\nfinal concentrations:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range result.Species {
		v, _ := result.Final(name)
		fmt.Fprintf(w, "  %s\t%.6g\n", name, v)
	}
	w.Flush()

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}
}

// printSolveMetrics writes the counters gathered during a run.
func printSolveMetrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			fmt.Printf("  %s%s: %g\n", mf.GetName(), labels, v)
		}
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMECHANISM\tSOLVER\tTIME\tDURATION\tDT\tCELLS\tFAILURES")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0fs\t%.3gs\t%d\t%d\n",
			run.ID,
			run.Mechanism,
			run.Solver,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Cells,
			run.Failures,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if len(series.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	names := species
	if len(names) == 0 {
		names = series.Species
	}
	columns := make([][]float64, 0, len(names))
	for _, name := range names {
		col, ok := series.Column(name)
		if !ok {
			return fmt.Errorf("unknown species %q (available: %v)", name, series.Species)
		}
		columns = append(columns, col)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mechanism: %s (%s)\n", meta.Mechanism, meta.Solver)
	fmt.Printf("samples: %d\n\n", len(series.Times))

	graph, err := viz.Plot(names, columns, viz.PlotOptions{
		Width:   width,
		Height:  height,
		Caption: fmt.Sprintf("concentration vs time (0 to %.0fs)", series.Times[len(series.Times)-1]),
	})
	if err != nil {
		return err
	}
	fmt.Println(graph)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if svgFile == "" {
		return storage.ExportJSON(os.Stdout, meta, series)
	}

	names := species
	if len(names) == 0 {
		names = series.Species
	}
	lines := make([]export.Line, 0, len(names))
	for _, name := range names {
		col, ok := series.Column(name)
		if !ok {
			return fmt.Errorf("unknown species %q (available: %v)", name, series.Species)
		}
		lines = append(lines, export.Line{Name: name, Values: col})
	}

	f, err := os.Create(svgFile)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.SeriesSVG(f, series.Times, lines, export.SVGOptions{LogScale: logY}); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgFile)
	return f.Close()
}
