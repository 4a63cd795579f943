package potential

import (
	"errors"
	"fmt"
	"iter"

	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
)

var ErrSlice = errors.New("potential: slice index out of range")

// Slices is one configuration of projected-potential slices.
type Slices interface {
	NumSlices() int
	// Slice returns the projected potential in V Å over the grid plane and
	// the slice thickness in Å.
	Slice(i int) (*field.Real, float64, error)
	Grid() *grid.Grid
}

// Potential is a scattering potential with one or more frozen-phonon
// configurations. FrozenPhononPotentials yields them lazily.
type Potential interface {
	Slices
	NumFrozenPhonons() int
	FrozenPhononPotentials() iter.Seq2[int, Slices]
}

// EnergyDefined is implemented by potentials tied to an acceleration energy.
type EnergyDefined interface {
	Accelerator() *energy.Accelerator
}

// TotalThickness sums the slice thicknesses.
func TotalThickness(s Slices) (float64, error) {
	total := 0.0
	for i := range s.NumSlices() {
		_, dz, err := s.Slice(i)
		if err != nil {
			return 0, err
		}
		total += dz
	}
	return total, nil
}

// Array is a potential held in memory as a (slices, n0, n1) array.
type Array struct {
	array     *field.Real
	thickness []float64
	grid      *grid.Grid
	acc       *energy.Accelerator
}

// NewArray wraps a (slices, n0, n1) array. A single thickness applies to
// every slice. Energy is optional; zero leaves it undefined.
func NewArray(array *field.Real, thickness []float64, extent []float64, ev float64) (*Array, error) {
	if array.NDim() != 3 {
		return nil, fmt.Errorf("%w: potential must be (slices, n0, n1), got %v", field.ErrShape, array.Shape)
	}
	n := array.Shape[0]
	switch len(thickness) {
	case 1:
		t := thickness[0]
		thickness = make([]float64, n)
		for i := range thickness {
			thickness[i] = t
		}
	case n:
		thickness = append([]float64(nil), thickness...)
	default:
		return nil, fmt.Errorf("%w: %d thicknesses for %d slices", field.ErrShape, len(thickness), n)
	}

	g, err := grid.New(grid.Config{Extent: extent, Gpts: array.Shape[1:], LockGpts: true})
	if err != nil {
		return nil, err
	}
	return &Array{array: array, thickness: thickness, grid: g, acc: energy.New(ev)}, nil
}

// Zero returns numSlices all-zero slices of the given thickness.
func Zero(gpts []int, extent []float64, numSlices int, thickness float64) (*Array, error) {
	a, err := field.NewReal(numSlices, gpts[0], gpts[1])
	if err != nil {
		return nil, err
	}
	return NewArray(a, []float64{thickness}, extent, 0)
}

func (p *Array) NumSlices() int                   { return p.array.Shape[0] }
func (p *Array) Grid() *grid.Grid                 { return p.grid }
func (p *Array) Accelerator() *energy.Accelerator { return p.acc }
func (p *Array) NumFrozenPhonons() int            { return 1 }

func (p *Array) Slice(i int) (*field.Real, float64, error) {
	if i < 0 || i >= p.NumSlices() {
		return nil, 0, fmt.Errorf("%w: %d of %d", ErrSlice, i, p.NumSlices())
	}
	v, err := p.array.Index(i)
	if err != nil {
		return nil, 0, err
	}
	return v, p.thickness[i], nil
}

func (p *Array) FrozenPhononPotentials() iter.Seq2[int, Slices] {
	return func(yield func(int, Slices) bool) {
		yield(0, p)
	}
}

// Values returns the underlying (slices, n0, n1) array.
func (p *Array) Values() *field.Real { return p.array }
