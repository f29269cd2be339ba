package sim

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/chemsim/internal/chem"
)

// Backend is a backend its caller must close.
type Backend interface {
	chem.Backend
	Close() error
}

// Factory builds one independent backend per ensemble member.
type Factory func() (Backend, error)

// Ensemble runs several scenarios concurrently, each on its own backend and
// state.
type Ensemble struct {
	factory Factory
	log     *zap.Logger
}

func NewEnsemble(factory Factory, log *zap.Logger) *Ensemble {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ensemble{factory: factory, log: log}
}

// Run returns one result per initial box, in input order. The first error
// cancels the remaining members.
func (e *Ensemble) Run(ctx context.Context, inits []Initial, cfg Config) ([]*Result, error) {
	results := make([]*Result, len(inits))

	g, ctx := errgroup.WithContext(ctx)
	for i, init := range inits {
		g.Go(func() (err error) {
			b, err := e.factory()
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			defer func() {
				if cerr := b.Close(); err == nil {
					err = cerr
				}
			}()

			res, err := New(b, e.log.With(zap.Int("member", i))).Run(ctx, init, cfg)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
