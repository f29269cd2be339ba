package sim

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/san-kum/chemsim/internal/cpu"
)

type closer struct {
	*cpu.Backend
	closed *atomic.Int32
}

func (c closer) Close() error {
	c.closed.Add(1)
	return nil
}

func TestEnsembleRunsIndependentMembers(t *testing.T) {
	var closed atomic.Int32
	factory := func() (Backend, error) {
		return closer{newBackend(t, "decay"), &closed}, nil
	}

	scales := []float64{1, 2, 4}
	inits := make([]Initial, len(scales))
	for i, s := range scales {
		inits[i] = decayBox(s)
	}
	results, err := NewEnsemble(factory, nil).Run(context.Background(), inits, Config{Dt: 10, Duration: 50, Cells: 2})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if len(results) != len(scales) {
		t.Fatalf("expected %d results, got %d", len(scales), len(results))
	}
	if closed.Load() != int32(len(scales)) {
		t.Errorf("expected every member backend closed, got %d", closed.Load())
	}

	for i, s := range scales {
		a, _ := results[i].Final("A")
		want := s * math.Exp(-4e-3*50)
		if math.Abs(a-want) > 1e-3*s {
			t.Errorf("member %d: expected %v, got %v", i, want, a)
		}
	}
}

func TestEnsembleFactoryError(t *testing.T) {
	boom := errors.New("boom")
	factory := func() (Backend, error) { return nil, boom }

	_, err := NewEnsemble(factory, nil).Run(context.Background(), []Initial{decayBox(1)}, DefaultConfig())
	if !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}
