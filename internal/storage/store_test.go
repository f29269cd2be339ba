package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/sim"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		Species:        []string{"A", "B"},
		Times:          []float64{0, 60, 120},
		Concentrations: [][]float64{{1, 0}, {0.8, 0.2}, {0.64, 0.36}},
		Statuses:       []chem.Status{chem.Converged, chem.Converged},
		Stats:          chem.Stats{FunctionCalls: 12, FinalTime: 120},
		Metrics:        map[string]float64{"stability": 1},
		StepsTaken:     2,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{Mechanism: "decay", Solver: "Rosenbrock", Dt: 60, Duration: 120, Cells: 4}, sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := uuid.Parse(runID); err != nil {
		t.Errorf("expected uuid run id, got %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Mechanism != "decay" || meta.Cells != 4 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Steps != 2 || meta.Stats.FunctionCalls != 12 {
		t.Errorf("result summary not stored: %+v", meta)
	}
	if meta.Metrics["stability"] != 1 {
		t.Errorf("expected stability 1, got %v", meta.Metrics)
	}
	if meta.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	if len(series.Times) != 3 || series.Times[2] != 120 {
		t.Errorf("unexpected times %v", series.Times)
	}
	b, ok := series.Column("B")
	if !ok || b[2] != 0.36 {
		t.Errorf("unexpected B column %v", b)
	}
	if _, ok := series.Column("Z"); ok {
		t.Error("expected missing column")
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty list, got %v, %v", runs, err)
	}

	first, err := st.Save(RunMetadata{Mechanism: "decay"}, sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	second, err := st.Save(RunMetadata{Mechanism: "chapman"}, sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	// stray entries are ignored
	if err := os.Mkdir(filepath.Join(dir, "not-a-run"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	ids := map[string]bool{runs[0].ID: true, runs[1].ID: true}
	if !ids[first] || !ids[second] {
		t.Errorf("list missing runs: %v", ids)
	}
	if runs[0].Timestamp.Before(runs[1].Timestamp) {
		t.Error("expected newest run first")
	}
}

func TestLoadUnknownRun(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := st.LoadSeries("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestReadSeriesErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"bad time", "time,A\nx,1\n"},
		{"bad value", "time,A\n0,y\n"},
		{"ragged", "time,A\n0,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadSeries(strings.NewReader(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	meta := &RunMetadata{ID: "run", Mechanism: "decay"}
	series := &Series{Species: []string{"A"}, Times: []float64{0, 1}, Values: [][]float64{{1}, {0.5}}}
	if err := ExportJSON(&buf, meta, series); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc["mechanism"] != "decay" || len(doc["times"].([]any)) != 2 {
		t.Errorf("unexpected document %v", doc)
	}
}
