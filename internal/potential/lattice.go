package potential

import (
	"fmt"
	"iter"
	"math"
	"math/rand"

	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
)

// LatticeConfig describes a square lattice of Gaussian atomic columns.
type LatticeConfig struct {
	Extent    []float64 `yaml:"extent"`
	Gpts      []int     `yaml:"gpts"`
	Spacing   float64   `yaml:"spacing"`   // Å
	Amplitude float64   `yaml:"amplitude"` // integrated V Å^3 per atom
	Width     float64   `yaml:"width"`     // Gaussian sigma, Å
	NumSlices int       `yaml:"num_slices"`
	Thickness float64   `yaml:"thickness"` // per slice, Å

	FrozenPhonons int     `yaml:"frozen_phonons"`
	Displacement  float64 `yaml:"displacement"` // rms, Å
	Seed          int64   `yaml:"seed"`
}

// DefaultLatticeConfig is a 4 Å lattice, roughly a light-element crystal.
func DefaultLatticeConfig() LatticeConfig {
	return LatticeConfig{
		Extent:        []float64{16, 16},
		Gpts:          []int{128, 128},
		Spacing:       4,
		Amplitude:     20,
		Width:         0.3,
		NumSlices:     10,
		Thickness:     2,
		FrozenPhonons: 1,
		Displacement:  0.08,
		Seed:          1,
	}
}

// Lattice generates slices on demand. Each frozen-phonon configuration
// displaces every atom of every slice by an independent Gaussian offset
// drawn from a generator seeded with Seed+configuration.
type Lattice struct {
	cfg  LatticeConfig
	grid *grid.Grid
}

func NewLattice(cfg LatticeConfig) (*Lattice, error) {
	if cfg.Spacing <= 0 || cfg.Width <= 0 {
		return nil, fmt.Errorf("potential: spacing and width must be positive")
	}
	if cfg.NumSlices <= 0 || cfg.Thickness <= 0 {
		return nil, fmt.Errorf("potential: need positive slice count and thickness")
	}
	if cfg.FrozenPhonons < 1 {
		cfg.FrozenPhonons = 1
	}
	g, err := grid.New(grid.Config{Extent: cfg.Extent, Gpts: cfg.Gpts, LockGpts: true})
	if err != nil {
		return nil, err
	}
	if err := g.CheckDefined(); err != nil {
		return nil, err
	}
	return &Lattice{cfg: cfg, grid: g}, nil
}

func (l *Lattice) NumSlices() int        { return l.cfg.NumSlices }
func (l *Lattice) Grid() *grid.Grid      { return l.grid }
func (l *Lattice) NumFrozenPhonons() int { return l.cfg.FrozenPhonons }

// Slice returns slice i of the undisplaced lattice.
func (l *Lattice) Slice(i int) (*field.Real, float64, error) {
	if i < 0 || i >= l.cfg.NumSlices {
		return nil, 0, fmt.Errorf("%w: %d of %d", ErrSlice, i, l.cfg.NumSlices)
	}
	v, err := l.project(nil)
	return v, l.cfg.Thickness, err
}

func (l *Lattice) FrozenPhononPotentials() iter.Seq2[int, Slices] {
	return func(yield func(int, Slices) bool) {
		for i := range l.cfg.FrozenPhonons {
			cfg, err := l.Configuration(i)
			if err != nil {
				yield(i, &failed{l.grid, l.cfg.NumSlices, err})
				return
			}
			if !yield(i, cfg) {
				return
			}
		}
	}
}

// Configuration builds frozen-phonon configuration i.
func (l *Lattice) Configuration(i int) (*Array, error) {
	rng := rand.New(rand.NewSource(l.cfg.Seed + int64(i)))
	gpts := l.grid.Gpts()
	arr, err := field.NewReal(l.cfg.NumSlices, gpts[0], gpts[1])
	if err != nil {
		return nil, err
	}
	for s := range l.cfg.NumSlices {
		v, err := l.project(rng)
		if err != nil {
			return nil, err
		}
		copy(arr.Plane(s), v.Data)
	}
	return NewArray(arr, []float64{l.cfg.Thickness}, l.grid.Extent(), 0)
}

// project renders one slice. A nil rng leaves atoms on their sites.
func (l *Lattice) project(rng *rand.Rand) (*field.Real, error) {
	extent, gpts, sampling := l.grid.Extent(), l.grid.Gpts(), l.grid.Sampling()
	out, err := field.NewReal(gpts[0], gpts[1])
	if err != nil {
		return nil, err
	}

	w := l.cfg.Width
	norm := l.cfg.Amplitude / (2 * math.Pi * w * w)
	reach := 4 * w
	nx := int(math.Round(extent[0] / l.cfg.Spacing))
	ny := int(math.Round(extent[1] / l.cfg.Spacing))

	for a := range nx {
		for b := range ny {
			x0 := (float64(a) + 0.5) * l.cfg.Spacing
			y0 := (float64(b) + 0.5) * l.cfg.Spacing
			if rng != nil {
				x0 += rng.NormFloat64() * l.cfg.Displacement
				y0 += rng.NormFloat64() * l.cfg.Displacement
			}
			addGaussian(out.Data, gpts, sampling, x0, y0, w, norm, reach)
		}
	}
	return out, nil
}

// addGaussian adds a periodic Gaussian, truncated at reach, centred on (x0, y0).
func addGaussian(dst []float64, gpts []int, sampling []float64, x0, y0, w, norm, reach float64) {
	i0 := int(math.Floor((x0 - reach) / sampling[0]))
	i1 := int(math.Ceil((x0 + reach) / sampling[0]))
	j0 := int(math.Floor((y0 - reach) / sampling[1]))
	j1 := int(math.Ceil((y0 + reach) / sampling[1]))

	for i := i0; i <= i1; i++ {
		dx := float64(i)*sampling[0] - x0
		ii := ((i % gpts[0]) + gpts[0]) % gpts[0]
		for j := j0; j <= j1; j++ {
			dy := float64(j)*sampling[1] - y0
			r2 := dx*dx + dy*dy
			if r2 > reach*reach {
				continue
			}
			jj := ((j % gpts[1]) + gpts[1]) % gpts[1]
			dst[ii*gpts[1]+jj] += norm * math.Exp(-r2/(2*w*w))
		}
	}
}

// failed carries a generation error into the multislice loop.
type failed struct {
	grid *grid.Grid
	n    int
	err  error
}

func (f *failed) NumSlices() int   { return f.n }
func (f *failed) Grid() *grid.Grid { return f.grid }
func (f *failed) Slice(int) (*field.Real, float64, error) {
	return nil, 0, f.err
}
