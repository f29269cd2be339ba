package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/chemsim/internal/automation"
	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/config"
	"github.com/san-kum/chemsim/internal/loader"
	"github.com/san-kum/chemsim/internal/mechanism"
	"github.com/san-kum/chemsim/internal/sim"
	"github.com/san-kum/chemsim/internal/solver"
	"github.com/san-kum/chemsim/internal/viz"
)

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		names := config.ListPresets(args[0])
		if len(names) == 0 {
			return fmt.Errorf("no presets for mechanism %q", args[0])
		}
		fmt.Printf("presets for %s:\n", args[0])
		for _, name := range names {
			p := config.GetPreset(args[0], name)
			fmt.Printf("  %-10s solver=%s dt=%gs time=%gs cells=%d\n", name, p.Solver, p.Dt, p.Duration, p.Cells)
		}
		return nil
	}

	fmt.Println("mechanisms:")
	for _, name := range mechanism.ListPresets() {
		m, _ := mechanism.Preset(name)
		fmt.Printf("  %-10s %d species, %d reactions, presets: %v\n",
			name, len(m.Species), len(m.Reactions), config.ListPresets(name))
	}
	return nil
}

// backendRows probes every selector with m and reports what it offers.
func backendRows(m *mechanism.Mechanism, ld *loader.Loader) []viz.BackendRow {
	rows := make([]viz.BackendRow, 0, len(chem.SolverTypes()))
	for _, t := range chem.SolverTypes() {
		row := viz.BackendRow{Name: t.String()}
		s, err := solver.New(m, t, solver.Options{Loader: ld})
		if err != nil {
			row.Note = err.Error()
			rows = append(rows, row)
			continue
		}
		row.Available = true
		row.VectorSize = s.VectorSize()
		row.MaxCells = s.MaximumNumberOfGridCells()
		if t.IsGPU() {
			row.Note = ld.Path()
		}
		if err := s.Close(); err != nil {
			row.Note = err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func showBackends(cmd *cobra.Command, args []string) error {
	m, _ := mechanism.Preset("box5")
	ld := loader.Default()
	fmt.Println(viz.BackendTable(viz.GetTheme("ocean"), backendRows(m, ld)))

	if !solver.GPUAvailable() {
		fmt.Printf("gpu module: %v\n", ld.LastError())
		fmt.Printf("probed: %v\n", ld.Candidates())
	}
	return nil
}

type benchResult struct {
	solver  chem.SolverType
	solves  int
	elapsed time.Duration
	status  chem.Status
}

// benchPair solves one independent state n times.
func benchPair(s *solver.Solver, init sim.Initial, cells, n int, dt float64) (chem.Result, error) {
	st, err := sim.NewState(s, init, cells)
	if err != nil {
		return chem.Result{}, err
	}
	defer sim.Release(st)
	res := chem.NewResult(0)
	for i := 0; i < n; i++ {
		r, err := s.Solve(st, dt)
		if err != nil {
			return res, err
		}
		res.Merge(r)
	}
	return res, nil
}

func benchSolver(ctx context.Context, cfg *config.Config, t chem.SolverType, log *zap.Logger) (benchResult, error) {
	g, _ := errgroup.WithContext(ctx)
	results := make([]chem.Result, workers)

	start := time.Now()
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			c := *cfg
			c.Solver = t.String()
			s, _, err := automation.Build(&c, automation.Options{Logger: log})
			if err != nil {
				return err
			}
			defer s.Close()
			results[w], err = benchPair(s, c.GetInitial(), c.Cells, steps, c.Dt)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return benchResult{}, fmt.Errorf("%s: %w", t, err)
	}

	out := benchResult{solver: t, solves: workers * steps, elapsed: time.Since(start), status: chem.Converged}
	for _, r := range results {
		if r.Status.Severity() > out.status.Severity() {
			out.status = r.Status
		}
	}
	return out, nil
}

func benchBackends(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if workers < 1 || steps < 1 {
		return fmt.Errorf("workers and steps must be positive")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	types := []chem.SolverType{chem.Rosenbrock, chem.RosenbrockStandardOrder, chem.BackwardEuler, chem.BackwardEulerStandardOrder}
	if solver.GPUAvailable() {
		types = append(types, chem.CudaRosenbrock)
	}

	fmt.Printf("benchmarking %s: %d workers x %d solves, %d cells\n\n", cfg.Mechanism, workers, steps, cfg.Cells)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOLVER\tSOLVES\tTIME\tSOLVES/SEC\tSTATUS")

	for _, t := range types {
		r, err := benchSolver(cmd.Context(), cfg, t, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%v\t%.0f\t%s\n",
			r.solver, r.solves, r.elapsed.Round(time.Microsecond), float64(r.solves)/r.elapsed.Seconds(), r.status)
	}

	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the live view owns the terminal; only errors are logged
	cfg.Log.Level = "error"
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	s, _, err := automation.Build(cfg, automation.Options{Logger: log})
	if err != nil {
		return err
	}
	defer s.Close()

	if frameRate <= 0 {
		frameRate = 30
	}
	m, err := viz.NewModel(s, cfg.GetInitial(), cfg.GetSimConfig(), time.Second/time.Duration(frameRate))
	if err != nil {
		return err
	}
	return viz.Run(m.WithTheme(viz.GetTheme(theme)))
}

func showMechanism(cmd *cobra.Command, args []string) error {
	m, err := mechanism.Resolve(args[0])
	if err != nil {
		return err
	}
	data, err := mechanism.Marshal(m)
	if err != nil {
		return err
	}
	if outFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s to %s\n", m.Name, outFile)
	return nil
}
