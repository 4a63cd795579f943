package waves

import (
	"context"

	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/potential"
)

type PlaneWaveConfig struct {
	Energy    float64
	Extent    []float64
	Gpts      []int
	Sampling  []float64
	Tilt      [2]float64
	Antialias float64
}

// PlaneWave builds uniform waves. Its grid may be left partly undefined and
// completed from a potential by Multislice.
type PlaneWave struct {
	grid      *grid.Grid
	acc       *energy.Accelerator
	tilt      [2]float64
	antialias float64
}

func NewPlaneWave(cfg PlaneWaveConfig) (*PlaneWave, error) {
	g, err := grid.New(grid.Config{Extent: cfg.Extent, Gpts: cfg.Gpts, Sampling: cfg.Sampling})
	if err != nil {
		return nil, err
	}
	return &PlaneWave{grid: g, acc: energy.New(cfg.Energy), tilt: cfg.Tilt, antialias: cfg.Antialias}, nil
}

func (pw *PlaneWave) Grid() *grid.Grid                 { return pw.grid }
func (pw *PlaneWave) Accelerator() *energy.Accelerator { return pw.acc }

// Build returns a single wave of ones.
func (pw *PlaneWave) Build() (*Waves, error) {
	if err := pw.grid.CheckDefined(); err != nil {
		return nil, err
	}
	gpts := pw.grid.Gpts()
	a, err := field.NewComplex(gpts[0], gpts[1])
	if err != nil {
		return nil, err
	}
	for i := range a.Data {
		a.Data[i] = 1
	}
	ev, _ := pw.acc.Energy()
	return New(a, Config{Energy: ev, Extent: pw.grid.Extent(), Tilt: pw.tilt, Antialias: pw.antialias})
}

// matchPotential completes the grid and energy from p and returns the
// changes made on this side.
func matchPotential(g *grid.Grid, acc *energy.Accelerator, p potential.Slices) ([]cache.Change, error) {
	mine, _, err := g.Match(p.Grid())
	if err != nil {
		return mine, err
	}
	if ed, ok := p.(potential.EnergyDefined); ok && ed.Accelerator().Defined() {
		ch, _, err := acc.Match(ed.Accelerator())
		mine = append(mine, ch)
		if err != nil {
			return mine, err
		}
	}
	return mine, nil
}

// Multislice matches the grid to p, builds the plane wave and propagates
// it through p.
func (pw *PlaneWave) Multislice(ctx context.Context, p potential.Potential, opts MultisliceOptions) (*Waves, error) {
	if _, err := matchPotential(pw.grid, pw.acc, p); err != nil {
		return nil, err
	}
	w, err := pw.Build()
	if err != nil {
		return nil, err
	}
	return w.Multislice(ctx, p, opts)
}
