package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/chemsim/internal/automation"
	"github.com/san-kum/chemsim/internal/config"
	"github.com/san-kum/chemsim/internal/optim"
)

func runBatch(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("scenario %s: %d steps\n", scenario.Name, len(scenario.Steps))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tMECHANISM\tSOLVER\tSTEPS\tFAILURES\tTIME\tRUN")

	var saveErr error
	_, err = automation.RunScenario(ctx, scenario, automation.Options{Logger: log}, func(o *automation.Outcome) {
		runID := "-"
		if !noSave && saveErr == nil {
			runID, saveErr = saveOutcome(o)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%v\t%s\n",
			o.Name, o.Mechanism, o.Solver, o.Result.StepsTaken, len(o.Result.Errors), o.Elapsed, runID)
	})
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return err
	}
	return saveErr
}

// parseParam reads name=v1,v2,... or name=lo:hi:n (log spaced).
func parseParam(s string) (string, []float64, error) {
	name, rhs, ok := strings.Cut(s, "=")
	if !ok || name == "" || rhs == "" {
		return "", nil, fmt.Errorf("param %q: want name=values", s)
	}

	if parts := strings.Split(rhs, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || lo <= 0 || hi <= 0 || n < 1 {
			return "", nil, fmt.Errorf("param %q: want lo:hi:n with positive bounds", s)
		}
		return name, optim.Logspace(lo, hi, n), nil
	}

	var values []float64
	for _, field := range strings.Split(rhs, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("param %q: %w", s, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func parseTarget(s string) (automation.Target, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return automation.Target{}, fmt.Errorf("target %q: want species=value", s)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return automation.Target{}, fmt.Errorf("target %q: %w", s, err)
	}
	return automation.Target{Species: name, Value: v}, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return fmt.Errorf("at least one --param is required")
	}
	tgt, err := parseTarget(target)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(params))
	ranges := make([][]float64, 0, len(params))
	for _, p := range params {
		name, values, err := parseParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	grid := optim.NewGridSearch(names, ranges).WithWorkers(sweepWorkers)
	best, err := automation.Sweep(ctx, cfg, grid, tgt, automation.Options{Logger: log})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(names, "\t")+"\t|"+tgt.Species+" - TARGET|")
	for _, p := range best.Points {
		row := make([]string, 0, len(names)+1)
		for _, name := range names {
			row = append(row, strconv.FormatFloat(p.Params[name], 'g', 4, 64))
		}
		if p.Err != nil {
			row = append(row, "error: "+p.Err.Error())
		} else {
			row = append(row, strconv.FormatFloat(p.Value, 'g', 6, 64))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nbest (%d of %d points failed):\n", best.Failed(), len(best.Points))
	for _, name := range names {
		fmt.Printf("  %s = %g\n", name, best.Params[name])
	}
	fmt.Printf("  |%s - %g| = %g\n", tgt.Species, tgt.Value, best.Value)
	return nil
}
