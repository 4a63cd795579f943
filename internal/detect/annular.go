package detect

import (
	"fmt"
	"math"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/scan"
)

// Geometry property names reported by detector setters.
const (
	Inner    = "inner"
	Outer    = "outer"
	Step     = "step"
	Rotation = "rotation"
)

// AnnularDetector records the fraction of the intensity scattered into
// [Inner, Outer) mrad. A non-positive Outer covers everything beyond Inner.
type AnnularDetector struct {
	inner, outer float64
	regions      *regions
}

func NewAnnular(inner, outer float64) *AnnularDetector {
	return &AnnularDetector{inner: inner, outer: outer, regions: newRegions()}
}

func (d *AnnularDetector) Name() string {
	if d.outer <= 0 {
		return fmt.Sprintf("annular(%g-inf)", d.inner)
	}
	return fmt.Sprintf("annular(%g-%g)", d.inner, d.outer)
}

func (d *AnnularDetector) Inner() float64 { return d.inner }
func (d *AnnularDetector) Outer() float64 { return d.outer }

func (d *AnnularDetector) SetInner(v float64) cache.Change {
	return setFloat(d.regions, Inner, &d.inner, v)
}

func (d *AnnularDetector) SetOuter(v float64) cache.Change {
	return setFloat(d.regions, Outer, &d.outer, v)
}

func (d *AnnularDetector) labels(gpts [2]int, sampling [2]float64, wavelength float64) ([]int, error) {
	return d.regions.get(gpts, sampling, wavelength, func() ([]int, error) {
		return PolarRegions(gpts, sampling, wavelength, d.inner, d.outer, 1, 1, 0)
	})
}

func (d *AnnularDetector) Detect(w Wavefunction) (*measure.Measurement, error) {
	gpts, sampling, wavelength, err := waveGeometry(w)
	if err != nil {
		return nil, err
	}
	labels, err := d.labels(gpts, sampling, wavelength)
	if err != nil {
		return nil, err
	}
	intensity, err := farField(w)
	if err != nil {
		return nil, err
	}
	out, err := integrate(intensity, labels, 1)
	if err != nil {
		return nil, err
	}
	if out, err = out.Reshape(intensity.ExtraShape()...); err != nil {
		return nil, err
	}
	m, err := measure.New(out, w.ExtraAxes())
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = d.Name(), "fraction"
	return m, nil
}

func (d *AnnularDetector) AllocateMeasurement(_ *grid.Grid, _ float64, s scan.Scan) (*measure.Measurement, error) {
	m, err := allocate(s, nil, nil)
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = d.Name(), "fraction"
	return m, nil
}

// FlexibleAnnularDetector bins the intensity into rings of width Step mrad
// from the optical axis out to the Nyquist angle, so that any annular range
// on the ring boundaries can be integrated after the simulation.
type FlexibleAnnularDetector struct {
	step    float64
	regions *regions
}

func NewFlexibleAnnular(step float64) *FlexibleAnnularDetector {
	return &FlexibleAnnularDetector{step: step, regions: newRegions()}
}

func (d *FlexibleAnnularDetector) Name() string  { return fmt.Sprintf("flexible_annular(%g)", d.step) }
func (d *FlexibleAnnularDetector) Step() float64 { return d.step }

func (d *FlexibleAnnularDetector) SetStep(v float64) cache.Change {
	return setFloat(d.regions, Step, &d.step, v)
}

// NumBins is the number of rings up to the Nyquist angle of the grid.
func (d *FlexibleAnnularDetector) NumBins(sampling [2]float64, wavelength float64) (int, error) {
	if d.step <= 0 {
		return 0, fmt.Errorf("%w: step must be positive, got %g", ErrGeometry, d.step)
	}
	return int(math.Ceil(NyquistAngle(sampling, wavelength) / d.step)), nil
}

func (d *FlexibleAnnularDetector) Detect(w Wavefunction) (*measure.Measurement, error) {
	gpts, sampling, wavelength, err := waveGeometry(w)
	if err != nil {
		return nil, err
	}
	n, err := d.NumBins(sampling, wavelength)
	if err != nil {
		return nil, err
	}
	labels, err := d.regions.get(gpts, sampling, wavelength, func() ([]int, error) {
		return PolarRegions(gpts, sampling, wavelength, 0, float64(n)*d.step, n, 1, 0)
	})
	if err != nil {
		return nil, err
	}
	intensity, err := farField(w)
	if err != nil {
		return nil, err
	}
	out, err := integrate(intensity, labels, n)
	if err != nil {
		return nil, err
	}
	m, err := measure.New(out, append(axes.Clone(w.ExtraAxes()), d.radialAxis()))
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = d.Name(), "fraction"
	return m, nil
}

func (d *FlexibleAnnularDetector) radialAxis() axes.Axis {
	return axes.Axis{Kind: axes.FourierSpace, Label: "alpha", Units: "mrad", Sampling: d.step}
}

func (d *FlexibleAnnularDetector) AllocateMeasurement(g *grid.Grid, wavelength float64, s scan.Scan) (*measure.Measurement, error) {
	if err := g.CheckDefined(); err != nil {
		return nil, err
	}
	sp := g.Sampling()
	n, err := d.NumBins([2]float64{sp[0], sp[1]}, wavelength)
	if err != nil {
		return nil, err
	}
	m, err := allocate(s, []int{n}, []axes.Axis{d.radialAxis()})
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = d.Name(), "fraction"
	return m, nil
}

// Integrate sums the rings covering [inner, outer) mrad of a flexible
// annular measurement. Both limits are rounded to ring boundaries.
func (d *FlexibleAnnularDetector) Integrate(m *measure.Measurement, inner, outer float64) (*measure.Measurement, error) {
	shape := m.Array.Shape
	n := shape[len(shape)-1]
	lo := int(math.Round(inner / d.step))
	hi := min(int(math.Round(outer/d.step)), n)
	if lo < 0 || hi <= lo {
		return nil, fmt.Errorf("%w: cannot integrate [%g, %g) mrad", ErrGeometry, inner, outer)
	}

	out := m.Array.Clone()
	rows := len(out.Data) / n
	sums := make([]float64, rows)
	for r := range rows {
		for _, v := range m.Array.Data[r*n+lo : r*n+hi] {
			sums[r] += v
		}
	}
	out.Data = sums
	out.Shape = append([]int(nil), shape[:len(shape)-1]...)
	res, err := measure.New(out, m.Axes[:len(m.Axes)-1])
	if err != nil {
		return nil, err
	}
	res.Name, res.Units = fmt.Sprintf("annular(%g-%g)", inner, outer), m.Units
	return res, nil
}
