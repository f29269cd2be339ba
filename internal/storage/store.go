// Package storage keeps box-model runs on disk: one directory per run with
// a JSON metadata file and a CSV concentration series.
package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Mechanism  string             `json:"mechanism"`
	Solver     string             `json:"solver"`
	Requested  string             `json:"requested,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Cells      int                `json:"cells"`
	Conditions chem.Conditions    `json:"conditions"`
	Species    []string           `json:"species"`
	Steps      int                `json:"steps"`
	Failures   int                `json:"failures"`
	Stats      chem.Stats         `json:"stats"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes a new run and returns its id. ID and Timestamp of meta are
// assigned here.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	meta.ID = uuid.NewString()
	meta.Timestamp = time.Now().UTC()
	meta.Species = result.Species
	meta.Steps = result.StepsTaken
	meta.Failures = len(result.Errors)
	meta.Stats = result.Stats
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, metadataFile), data, 0644); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := WriteSeries(f, result); err != nil {
		return "", fmt.Errorf("write series: %w", err)
	}
	return meta.ID, f.Close()
}

// WriteSeries writes a time column followed by one column per species.
func WriteSeries(w io.Writer, result *sim.Result) error {
	cw := csv.NewWriter(w)

	header := append([]string{"time"}, result.Species...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, t := range result.Times {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatFloat(t, 'g', -1, 64))
		for _, val := range result.Concentrations[i] {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// Series is a loaded concentration time series.
type Series struct {
	Species []string
	Times   []float64
	Values  [][]float64
}

// Column returns the values of one species over time.
func (s *Series) Column(species string) ([]float64, bool) {
	for j, name := range s.Species {
		if name != species {
			continue
		}
		out := make([]float64, len(s.Values))
		for i, row := range s.Values {
			out[i] = row[j]
		}
		return out, true
	}
	return nil, false
}

func (s *Store) LoadSeries(runID string) (*Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()
	return ReadSeries(file)
}

func ReadSeries(r io.Reader) (*Series, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("series: missing header")
	}

	series := &Series{
		Species: records[0][1:],
		Times:   make([]float64, 0, len(records)-1),
		Values:  make([][]float64, 0, len(records)-1),
	}
	for i, record := range records[1:] {
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("series row %d: %w", i+1, err)
		}
		row := make([]float64, len(record)-1)
		for j, field := range record[1:] {
			if row[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("series row %d: %w", i+1, err)
			}
		}
		series.Times = append(series.Times, t)
		series.Values = append(series.Values, row)
	}
	return series, nil
}

// ExportJSON writes metadata and series as one JSON document.
func ExportJSON(w io.Writer, meta *RunMetadata, series *Series) error {
	doc := struct {
		*RunMetadata
		Times  []float64   `json:"times"`
		Values [][]float64 `json:"values"`
	}{meta, series.Times, series.Values}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
