package measure

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/field"
)

var ErrAxes = errors.New("measure: axes do not match array")

// Measurement is a real array with one calibrated axis per dimension.
type Measurement struct {
	Array *field.Real
	Axes  []axes.Axis
	Name  string
	Units string
}

func New(array *field.Real, list []axes.Axis) (*Measurement, error) {
	if len(list) != array.NDim() {
		return nil, fmt.Errorf("%w: %d axes for shape %v", ErrAxes, len(list), array.Shape)
	}
	return &Measurement{Array: array, Axes: axes.Clone(list)}, nil
}

func (m *Measurement) Shape() []int { return slices.Clone(m.Array.Shape) }

func (m *Measurement) Sum() float64 { return floats.Sum(m.Array.Data) }

func (m *Measurement) Copy() *Measurement {
	return &Measurement{Array: m.Array.Clone(), Axes: axes.Clone(m.Axes), Name: m.Name, Units: m.Units}
}

// Index selects leading index i.
func (m *Measurement) Index(i int) (*Measurement, error) {
	a, err := m.Array.Index(i)
	if err != nil {
		return nil, err
	}
	return &Measurement{Array: a, Axes: axes.Clone(m.Axes[1:]), Name: m.Name, Units: m.Units}, nil
}

// Mean averages over one axis and drops it.
func (m *Measurement) Mean(axis int) (*Measurement, error) {
	shape := m.Array.Shape
	if axis < 0 || axis >= len(shape) {
		return nil, fmt.Errorf("%w: axis %d of %v", ErrAxes, axis, shape)
	}

	outer, inner := 1, 1
	for _, s := range shape[:axis] {
		outer *= s
	}
	for _, s := range shape[axis+1:] {
		inner *= s
	}
	n := shape[axis]

	outShape := slices.Delete(slices.Clone(shape), axis, axis+1)
	data := make([]float64, outer*inner)
	for o := range outer {
		dst := data[o*inner : (o+1)*inner]
		for k := range n {
			start := (o*n + k) * inner
			floats.Add(dst, m.Array.Data[start:start+inner])
		}
		floats.Scale(1/float64(n), dst)
	}

	arr := &field.Real{Shape: outShape, Data: data}
	list := slices.Delete(axes.Clone(m.Axes), axis, axis+1)
	return &Measurement{Array: arr, Axes: list, Name: m.Name, Units: m.Units}, nil
}

// MeanEnsemble averages over every ensemble axis, such as frozen phonons.
func (m *Measurement) MeanEnsemble() (*Measurement, error) {
	out := m
	for {
		idx := axes.Find(out.Axes, axes.Ensemble)
		if len(idx) == 0 {
			return out, nil
		}
		var err error
		if out, err = out.Mean(idx[0]); err != nil {
			return nil, err
		}
	}
}

// Images are real-space measurements, typically |psi|^2.
type Images struct {
	*Measurement
	Sampling [2]float64
}

func NewImages(array *field.Real, extra []axes.Axis, sampling [2]float64) (*Images, error) {
	list := append(axes.Clone(extra), axes.RealSpaceAxis("x", sampling[0]), axes.RealSpaceAxis("y", sampling[1]))
	m, err := New(array, list)
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = "intensity", "arb. unit"
	return &Images{Measurement: m, Sampling: sampling}, nil
}

// DiffractionPatterns are far-field intensities sampled in mrad.
type DiffractionPatterns struct {
	*Measurement
	AngularSampling [2]float64
	FFTShifted      bool
}

func NewDiffractionPatterns(array *field.Real, extra []axes.Axis, angular [2]float64, shifted bool) (*DiffractionPatterns, error) {
	n0, n1 := 0, 0
	if array.NDim() >= 2 {
		n0, n1 = array.PlaneShape()
	}
	var off0, off1 float64
	if shifted {
		off0, off1 = -float64(n0/2)*angular[0], -float64(n1/2)*angular[1]
	}
	list := append(axes.Clone(extra),
		axes.FourierSpaceAxis("alpha_x", angular[0], off0),
		axes.FourierSpaceAxis("alpha_y", angular[1], off1))
	m, err := New(array, list)
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = "intensity", "arb. unit"
	return &DiffractionPatterns{Measurement: m, AngularSampling: angular, FFTShifted: shifted}, nil
}

// angleIndex is the signed frequency index of pixel i along an n-point axis.
func (d *DiffractionPatterns) angleIndex(i, n int) int {
	if d.FFTShifted {
		return i - n/2
	}
	if i >= (n+1)/2 {
		return i - n
	}
	return i
}

// BlockDirect zeroes every pixel within radius mrad of the optical axis. A
// non-positive radius blocks only the zero-frequency pixel.
func (d *DiffractionPatterns) BlockDirect(radius float64) *DiffractionPatterns {
	out := &DiffractionPatterns{Measurement: d.Copy(), AngularSampling: d.AngularSampling, FFTShifted: d.FFTShifted}
	n0, n1 := out.Array.PlaneShape()
	for p := range out.Array.NumPlanes() {
		plane := out.Array.Plane(p)
		for r := range n0 {
			ax := float64(d.angleIndex(r, n0)) * d.AngularSampling[0]
			for c := range n1 {
				ay := float64(d.angleIndex(c, n1)) * d.AngularSampling[1]
				a := math.Hypot(ax, ay)
				if a < radius || (radius <= 0 && a == 0) {
					plane[r*n1+c] = 0
				}
			}
		}
	}
	return out
}
