package detect

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/compute"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/scan"
)

var ErrGeometry = errors.New("detect: invalid detector geometry")

// Wavefunction is what a detector reads: a complex array whose trailing two
// axes lie on the grid, plus its energy and the metadata of any leading axes.
type Wavefunction interface {
	Array() *field.Complex
	Grid() *grid.Grid
	Accelerator() *energy.Accelerator
	ExtraAxes() []axes.Axis
}

// Detector reduces wave functions to measurements.
type Detector interface {
	Name() string
	// Detect returns one value block per leading index of the wave array.
	Detect(w Wavefunction) (*measure.Measurement, error)
	// AllocateMeasurement returns a zeroed measurement for a whole scan.
	AllocateMeasurement(g *grid.Grid, wavelength float64, s scan.Scan) (*measure.Measurement, error)
}

// farField returns |FFT(psi)|^2 / N in unshifted order. The division makes
// the far-field sum equal the real-space sum.
func farField(w Wavefunction) (*field.Real, error) {
	arr := w.Array()
	if err := arr.CheckPlanar(); err != nil {
		return nil, err
	}
	b := compute.GetBackend()
	psi := arr.Clone()
	if err := b.FFT2(psi); err != nil {
		return nil, err
	}
	out := b.Abs2(psi)
	n0, n1 := out.PlaneShape()
	out.Scale(1 / float64(n0*n1))
	return out, nil
}

func waveGeometry(w Wavefunction) (gpts [2]int, sampling [2]float64, wavelength float64, err error) {
	if err = w.Grid().CheckDefined(); err != nil {
		return
	}
	if wavelength, err = w.Accelerator().Wavelength(); err != nil {
		return
	}
	g, d := w.Grid().Gpts(), w.Grid().Sampling()
	return [2]int{g[0], g[1]}, [2]float64{d[0], d[1]}, wavelength, nil
}

// NyquistAngle is the largest scattering angle a grid samples, in mrad.
func NyquistAngle(sampling [2]float64, wavelength float64) float64 {
	return wavelength / (2 * math.Max(sampling[0], sampling[1])) * 1e3
}

// PolarRegions labels every pixel of an unshifted Fourier grid. Pixels with
// scattering angle in [inner, outer) mrad get label r*nAzimuthal+a, where r
// is the radial and a the azimuthal bin; all others get -1. A non-positive
// outer is unbounded and then nRadial must be 1.
func PolarRegions(gpts [2]int, sampling [2]float64, wavelength, inner, outer float64, nRadial, nAzimuthal int, rotation float64) ([]int, error) {
	if nRadial < 1 || nAzimuthal < 1 {
		return nil, fmt.Errorf("%w: need at least one bin, got %dx%d", ErrGeometry, nRadial, nAzimuthal)
	}
	if inner < 0 {
		return nil, fmt.Errorf("%w: negative inner angle %g", ErrGeometry, inner)
	}
	unbounded := outer <= 0
	if unbounded && nRadial > 1 {
		return nil, fmt.Errorf("%w: radial bins need a finite outer angle", ErrGeometry)
	}
	if !unbounded && outer <= inner {
		return nil, fmt.Errorf("%w: outer %g <= inner %g", ErrGeometry, outer, inner)
	}

	kx := grid.FFTFreq(gpts[0], sampling[0])
	ky := grid.FFTFreq(gpts[1], sampling[1])
	labels := make([]int, gpts[0]*gpts[1])
	width := (outer - inner) / float64(nRadial)

	for i, x := range kx {
		for j, y := range ky {
			idx := i*gpts[1] + j
			alpha := wavelength * math.Hypot(x, y) * 1e3
			if alpha < inner || (!unbounded && alpha >= outer) {
				labels[idx] = -1
				continue
			}

			r := 0
			if !unbounded {
				r = min(int((alpha-inner)/width), nRadial-1)
			}
			phi := math.Mod(math.Atan2(y, x)-rotation, 2*math.Pi)
			if phi < 0 {
				phi += 2 * math.Pi
			}
			a := min(int(phi/(2*math.Pi)*float64(nAzimuthal)), nAzimuthal-1)
			labels[idx] = r*nAzimuthal + a
		}
	}
	return labels, nil
}

type regionKey struct {
	n0, n1     int
	d0, d1     float64
	wavelength float64
}

// regions caches the labels of a polar detector. The table is cleared when
// a geometry setter reports a change.
type regions struct {
	table  *cache.Table[regionKey, []int]
	caches cache.Group
}

func newRegions() *regions {
	r := &regions{table: cache.New[regionKey, []int](cache.OnAny())}
	r.caches.Add(r.table)
	return r
}

func (r *regions) get(gpts [2]int, sampling [2]float64, wavelength float64, compute func() ([]int, error)) ([]int, error) {
	return r.table.Get(regionKey{gpts[0], gpts[1], sampling[0], sampling[1], wavelength}, compute)
}

func (r *regions) notify(changes ...cache.Change) { r.caches.Notify(changes...) }

func setFloat(r *regions, name string, field *float64, v float64) cache.Change {
	ch := cache.Change{Property: name, Changed: *field != v}
	*field = v
	r.notify(ch)
	return ch
}

// integrate sums the far-field intensity of every plane per label and
// divides by the plane total. The result has shape extra + [nBins].
func integrate(intensity *field.Real, labels []int, nBins int) (*field.Real, error) {
	shape := append(intensity.ExtraShape(), nBins)
	out, err := field.NewReal(shape...)
	if err != nil {
		return nil, err
	}
	for p := range intensity.NumPlanes() {
		plane := intensity.Plane(p)
		dst := out.Data[p*nBins : (p+1)*nBins]
		total := 0.0
		for i, v := range plane {
			total += v
			if l := labels[i]; l >= 0 {
				dst[l] += v
			}
		}
		if total > 0 {
			for i := range dst {
				dst[i] /= total
			}
		}
	}
	return out, nil
}

// allocate builds a zeroed measurement of shape scan + detector.
func allocate(s scan.Scan, detShape []int, detAxes []axes.Axis) (*measure.Measurement, error) {
	var shape []int
	var list []axes.Axis
	if s != nil {
		shape = append(shape, s.Shape()...)
		list = append(list, s.Axes()...)
	}
	shape = append(shape, detShape...)
	list = append(list, detAxes...)
	arr, err := field.NewReal(shape...)
	if err != nil {
		return nil, err
	}
	return measure.New(arr, list)
}
