package waves

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
)

// DefaultAntialias is the antialias aperture as a fraction of the Nyquist
// frequency.
const DefaultAntialias = 2. / 3

var ErrShape = field.ErrShape

// ErrAngle is returned for a maximum angle beyond what the grid samples.
var ErrAngle = errors.New("waves: angle outside the sampled range")

type Config struct {
	Energy   float64
	Extent   []float64
	Sampling []float64
	// Tilt is the beam tilt in mrad.
	Tilt [2]float64
	// Antialias defaults to DefaultAntialias; a negative value disables it.
	Antialias float64
	// ExtraAxes describe the leading axes of the array. Nil means ordinal
	// axes.
	ExtraAxes []axes.Axis
}

// Waves is a batch of 2D wave functions on a shared grid. The array is
// never modified after construction except by explicit in-place calls.
type Waves struct {
	array     *field.Complex
	grid      *grid.Grid
	acc       *energy.Accelerator
	tilt      [2]float64
	antialias float64
	extra     []axes.Axis
}

// New wraps array without copying it. The grid gpts are locked to the
// trailing two axes of the array.
func New(array *field.Complex, cfg Config) (*Waves, error) {
	if err := array.CheckPlanar(); err != nil {
		return nil, err
	}
	n0, n1 := array.PlaneShape()
	g, err := grid.New(grid.Config{Extent: cfg.Extent, Gpts: []int{n0, n1}, Sampling: cfg.Sampling, LockGpts: true})
	if err != nil {
		return nil, err
	}

	extraDims := array.NDim() - 2
	extra := axes.Clone(cfg.ExtraAxes)
	if extra == nil && extraDims > 0 {
		extra = make([]axes.Axis, extraDims)
		for i := range extra {
			extra[i] = axes.Axis{Kind: axes.Ordinal, Label: fmt.Sprintf("axis%d", i)}
		}
	}
	if len(extra) != extraDims {
		return nil, fmt.Errorf("%w: %d extra axes for shape %v", ErrShape, len(extra), array.Shape)
	}

	antialias := cfg.Antialias
	if antialias == 0 {
		antialias = DefaultAntialias
	}
	return &Waves{
		array:     array,
		grid:      g,
		acc:       energy.New(cfg.Energy),
		tilt:      cfg.Tilt,
		antialias: antialias,
		extra:     extra,
	}, nil
}

func (w *Waves) Array() *field.Complex            { return w.array }
func (w *Waves) Grid() *grid.Grid                 { return w.grid }
func (w *Waves) Accelerator() *energy.Accelerator { return w.acc }
func (w *Waves) ExtraAxes() []axes.Axis           { return axes.Clone(w.extra) }
func (w *Waves) Tilt() [2]float64                 { return w.tilt }
func (w *Waves) Shape() []int                     { return append([]int(nil), w.array.Shape...) }

// Antialias returns the aperture fraction, or a negative value when the
// aperture is disabled.
func (w *Waves) Antialias() float64 { return w.antialias }

func (w *Waves) Energy() float64 {
	ev, _ := w.acc.Energy()
	return ev
}

// AxesMetadata returns the axes of every array dimension.
func (w *Waves) AxesMetadata() []axes.Axis {
	d := w.grid.Sampling()
	list := axes.Clone(w.extra)
	if d == nil {
		d = []float64{0, 0}
	}
	return append(list, axes.RealSpaceAxis("x", d[0]), axes.RealSpaceAxis("y", d[1]))
}

func (w *Waves) config() Config {
	return Config{
		Energy:    w.Energy(),
		Extent:    w.grid.Extent(),
		Tilt:      w.tilt,
		Antialias: w.antialias,
		ExtraAxes: w.extra,
	}
}

// with returns waves sharing this metadata around a new array.
func (w *Waves) with(array *field.Complex, extra []axes.Axis) (*Waves, error) {
	cfg := w.config()
	cfg.ExtraAxes = extra
	return New(array, cfg)
}

// Copy returns a deep copy.
func (w *Waves) Copy() *Waves {
	return &Waves{
		array:     w.array.Clone(),
		grid:      w.grid.Copy(),
		acc:       w.acc.Copy(),
		tilt:      w.tilt,
		antialias: w.antialias,
		extra:     axes.Clone(w.extra),
	}
}

// Index selects leading index i. The array is shared with w.
func (w *Waves) Index(i int) (*Waves, error) {
	if w.array.NDim() <= 2 {
		return nil, fmt.Errorf("%w: no extra axes to index", ErrShape)
	}
	a, err := w.array.Index(i)
	if err != nil {
		return nil, err
	}
	return w.with(a, w.extra[1:])
}

func (w *Waves) wavelength() (float64, error) {
	if err := w.grid.CheckDefined(); err != nil {
		return 0, err
	}
	return w.acc.Wavelength()
}

// AngularSampling is the scattering angle per Fourier pixel in mrad.
func (w *Waves) AngularSampling() ([2]float64, error) {
	lambda, err := w.wavelength()
	if err != nil {
		return [2]float64{}, err
	}
	e := w.grid.Extent()
	return [2]float64{lambda / e[0] * 1e3, lambda / e[1] * 1e3}, nil
}

// CutoffAngles is the radius of the antialias aperture along each axis in
// mrad. Without an aperture it is the Nyquist angle.
func (w *Waves) CutoffAngles() ([2]float64, error) {
	lambda, err := w.wavelength()
	if err != nil {
		return [2]float64{}, err
	}
	d := w.grid.Sampling()
	f := w.antialias
	if f <= 0 {
		f = 1
	}
	return [2]float64{f * lambda / (2 * d[0]) * 1e3, f * lambda / (2 * d[1]) * 1e3}, nil
}

// RectangleCutoffAngles is the half-width of the largest square inside the
// antialias aperture, in mrad.
func (w *Waves) RectangleCutoffAngles() ([2]float64, error) {
	c, err := w.CutoffAngles()
	if err != nil {
		return c, err
	}
	return [2]float64{c[0] / math.Sqrt2, c[1] / math.Sqrt2}, nil
}

type angleKind int

const (
	validAngle angleKind = iota
	cutoffAngle
	limitAngle
	fixedAngle
)

// MaxAngle selects how much of the Fourier plane an operation keeps.
type MaxAngle struct {
	kind  angleKind
	value float64
}

var (
	// ValidAngle keeps the largest square inside the antialias aperture.
	ValidAngle = MaxAngle{kind: validAngle}
	// CutoffAngle keeps the square enclosing the antialias aperture.
	CutoffAngle = MaxAngle{kind: cutoffAngle}
	// LimitAngle keeps the whole grid.
	LimitAngle = MaxAngle{kind: limitAngle}
)

// Angle keeps frequencies up to mrad.
func Angle(mrad float64) MaxAngle { return MaxAngle{kind: fixedAngle, value: mrad} }

func (m MaxAngle) String() string {
	switch m.kind {
	case validAngle:
		return "valid"
	case cutoffAngle:
		return "cutoff"
	case limitAngle:
		return "limit"
	}
	return fmt.Sprintf("%g mrad", m.value)
}

// ParseMaxAngle reads "valid", "cutoff", "limit" or a number of mrad.
func ParseMaxAngle(s string) (MaxAngle, error) {
	switch s {
	case "", "valid":
		return ValidAngle, nil
	case "cutoff":
		return CutoffAngle, nil
	case "limit":
		return LimitAngle, nil
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil || v <= 0 {
		return MaxAngle{}, fmt.Errorf("%w: %q", ErrAngle, s)
	}
	return Angle(v), nil
}

// GptsWithinAngle is the Fourier crop that keeps frequencies up to max.
func (w *Waves) GptsWithinAngle(max MaxAngle) ([2]int, error) {
	gpts := w.grid.Gpts()
	if max.kind == limitAngle {
		return [2]int{gpts[0], gpts[1]}, nil
	}

	var angles [2]float64
	var err error
	switch max.kind {
	case validAngle:
		angles, err = w.RectangleCutoffAngles()
	case cutoffAngle:
		angles, err = w.CutoffAngles()
	default:
		if max.value <= 0 {
			return [2]int{}, fmt.Errorf("%w: %g mrad", ErrAngle, max.value)
		}
		angles = [2]float64{max.value, max.value}
	}
	if err != nil {
		return [2]int{}, err
	}

	as, err := w.AngularSampling()
	if err != nil {
		return [2]int{}, err
	}
	var out [2]int
	for i := range out {
		n := 2*int(math.Ceil(angles[i]/as[i]-1e-9)) + 1
		out[i] = min(n, gpts[i])
	}
	return out, nil
}
