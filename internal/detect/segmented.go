package detect

import (
	"fmt"
	"math"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/scan"
)

// SegmentedDetector splits the annulus [Inner, Outer) mrad into radial and
// azimuthal segments. Rotation (rad) turns the first azimuthal segment away
// from the kx axis.
type SegmentedDetector struct {
	inner, outer float64
	nRadial      int
	nAzimuthal   int
	rotation     float64
	regions      *regions
}

func NewSegmented(inner, outer float64, nRadial, nAzimuthal int, rotation float64) (*SegmentedDetector, error) {
	if outer <= inner {
		return nil, fmt.Errorf("%w: outer %g <= inner %g", ErrGeometry, outer, inner)
	}
	if nRadial < 1 || nAzimuthal < 1 {
		return nil, fmt.Errorf("%w: need at least one segment", ErrGeometry)
	}
	return &SegmentedDetector{
		inner:      inner,
		outer:      outer,
		nRadial:    nRadial,
		nAzimuthal: nAzimuthal,
		rotation:   rotation,
		regions:    newRegions(),
	}, nil
}

func (d *SegmentedDetector) Name() string {
	return fmt.Sprintf("segmented(%g-%g,%dx%d)", d.inner, d.outer, d.nRadial, d.nAzimuthal)
}

func (d *SegmentedDetector) SetRotation(v float64) cache.Change {
	return setFloat(d.regions, Rotation, &d.rotation, v)
}

func (d *SegmentedDetector) SetInner(v float64) cache.Change {
	return setFloat(d.regions, Inner, &d.inner, v)
}

func (d *SegmentedDetector) SetOuter(v float64) cache.Change {
	return setFloat(d.regions, Outer, &d.outer, v)
}

func (d *SegmentedDetector) detectorAxes() []axes.Axis {
	return []axes.Axis{
		{Kind: axes.FourierSpace, Label: "alpha", Units: "mrad", Sampling: (d.outer - d.inner) / float64(d.nRadial), Offset: d.inner},
		{Kind: axes.FourierSpace, Label: "phi", Units: "rad", Sampling: 2 * math.Pi / float64(d.nAzimuthal), Offset: d.rotation},
	}
}

func (d *SegmentedDetector) Detect(w Wavefunction) (*measure.Measurement, error) {
	gpts, sampling, wavelength, err := waveGeometry(w)
	if err != nil {
		return nil, err
	}
	labels, err := d.regions.get(gpts, sampling, wavelength, func() ([]int, error) {
		return PolarRegions(gpts, sampling, wavelength, d.inner, d.outer, d.nRadial, d.nAzimuthal, d.rotation)
	})
	if err != nil {
		return nil, err
	}
	intensity, err := farField(w)
	if err != nil {
		return nil, err
	}
	out, err := integrate(intensity, labels, d.nRadial*d.nAzimuthal)
	if err != nil {
		return nil, err
	}
	if out, err = out.Reshape(append(intensity.ExtraShape(), d.nRadial, d.nAzimuthal)...); err != nil {
		return nil, err
	}
	m, err := measure.New(out, append(axes.Clone(w.ExtraAxes()), d.detectorAxes()...))
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = d.Name(), "fraction"
	return m, nil
}

func (d *SegmentedDetector) AllocateMeasurement(_ *grid.Grid, _ float64, s scan.Scan) (*measure.Measurement, error) {
	m, err := allocate(s, []int{d.nRadial, d.nAzimuthal}, d.detectorAxes())
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = d.Name(), "fraction"
	return m, nil
}

// PixelatedDetector records the far-field intensity with the zero frequency
// in the center, cropped to the central half of the grid on each axis.
type PixelatedDetector struct{}

func NewPixelated() *PixelatedDetector { return &PixelatedDetector{} }

func (d *PixelatedDetector) Name() string { return "pixelated" }

func cropShape(gpts [2]int) (int, int) {
	return max(gpts[0]/2, 1), max(gpts[1]/2, 1)
}

func angularSampling(g *grid.Grid, wavelength float64) [2]float64 {
	e := g.Extent()
	return [2]float64{wavelength / e[0] * 1e3, wavelength / e[1] * 1e3}
}

func (d *PixelatedDetector) Detect(w Wavefunction) (*measure.Measurement, error) {
	gpts, _, wavelength, err := waveGeometry(w)
	if err != nil {
		return nil, err
	}
	intensity, err := farField(w)
	if err != nil {
		return nil, err
	}
	m0, m1 := cropShape(gpts)
	cropped, err := field.CropCenter(field.FFTShift(intensity), m0, m1)
	if err != nil {
		return nil, err
	}
	dp, err := measure.NewDiffractionPatterns(cropped, w.ExtraAxes(), angularSampling(w.Grid(), wavelength), true)
	if err != nil {
		return nil, err
	}
	dp.Name = d.Name()
	return dp.Measurement, nil
}

func (d *PixelatedDetector) AllocateMeasurement(g *grid.Grid, wavelength float64, s scan.Scan) (*measure.Measurement, error) {
	if err := g.CheckDefined(); err != nil {
		return nil, err
	}
	gp := g.Gpts()
	m0, m1 := cropShape([2]int{gp[0], gp[1]})
	as := angularSampling(g, wavelength)
	m, err := allocate(s, []int{m0, m1}, []axes.Axis{
		axes.FourierSpaceAxis("alpha_x", as[0], -float64(m0/2)*as[0]),
		axes.FourierSpaceAxis("alpha_y", as[1], -float64(m1/2)*as[1]),
	})
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = d.Name(), "intensity"
	return m, nil
}
