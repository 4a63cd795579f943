package waves

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/multislice"
	"github.com/san-kum/stemsim/internal/potential"
)

var defaultEngine = sync.OnceValue(func() *multislice.Engine { return multislice.New(nil) })

type MultisliceOptions struct {
	Splits int
	// Observer is called concurrently when frozen phonons run in parallel.
	Observer multislice.Observer
	// Workers limits concurrent frozen-phonon runs. Zero means no limit.
	Workers int
	// Engine defaults to a shared engine on the active backend.
	Engine *multislice.Engine
}

func (o MultisliceOptions) engine() *multislice.Engine {
	if o.Engine != nil {
		return o.Engine
	}
	return defaultEngine()
}

func (w *Waves) wave() multislice.Wave {
	return multislice.Wave{
		Array:     w.array,
		Grid:      w.grid,
		Energy:    w.Energy(),
		Tilt:      w.tilt,
		Antialias: w.antialias,
	}
}

// propagate runs one configuration of slices.
func (w *Waves) propagate(ctx context.Context, s potential.Slices, opts MultisliceOptions) (*Waves, error) {
	exit, err := opts.engine().Run(ctx, w.wave(), s, multislice.Options{Splits: opts.Splits, Observer: opts.Observer})
	if err != nil {
		return nil, err
	}
	return w.with(exit, w.extra)
}

// Multislice propagates the waves through p. A potential with several
// frozen phonon configurations is run once per configuration and the exit
// waves are stacked along a new leading ensemble axis. Configurations are
// built as workers become free.
func (w *Waves) Multislice(ctx context.Context, p potential.Potential, opts MultisliceOptions) (*Waves, error) {
	n := p.NumFrozenPhonons()
	if n <= 1 {
		return w.propagate(ctx, p, opts)
	}

	engine := opts.engine()
	run := multislice.Options{Splits: opts.Splits, Observer: opts.Observer}
	wave := w.wave()
	exits, err := multislice.EnsembleSeq(ctx, p.FrozenPhononPotentials(), n, opts.Workers,
		func(ctx context.Context, _ int, s potential.Slices) (*field.Complex, error) {
			return engine.Run(ctx, wave, s, run)
		})
	if err != nil {
		return nil, err
	}
	for i, e := range exits {
		if e == nil {
			return nil, fmt.Errorf("waves: potential yielded no frozen phonon configuration %d", i)
		}
	}
	stacked, err := field.Stack(exits...)
	if err != nil {
		return nil, err
	}
	return w.with(stacked, append([]axes.Axis{axes.FrozenPhonons()}, w.extra...))
}
