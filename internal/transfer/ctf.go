package transfer

import (
	"math"
	"math/cmplx"

	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/grid"
)

// Property names reported by the CTF setters.
const (
	SemiangleCutoff  = "semiangle_cutoff"
	Defocus          = "defocus"
	Cs               = "Cs"
	Astigmatism      = "astigmatism"
	AstigmatismAngle = "astigmatism_angle"
)

// Config sets the lens parameters. Lengths are in Å, the cutoff in mrad and
// the astigmatism angle in radians. A non-positive cutoff disables the
// aperture.
type Config struct {
	Energy           float64 `yaml:"energy,omitempty"`
	SemiangleCutoff  float64 `yaml:"semiangle_cutoff"`
	Defocus          float64 `yaml:"defocus"`
	Cs               float64 `yaml:"Cs"`
	Astigmatism      float64 `yaml:"astigmatism"`
	AstigmatismAngle float64 `yaml:"astigmatism_angle"`
}

type kernelKey struct {
	n0, n1     int
	d0, d1     float64
	wavelength float64
}

// CTF is the contrast transfer function of the objective lens.
type CTF struct {
	acc    *energy.Accelerator
	params Config

	kernels *cache.Table[kernelKey, []complex128]
	caches  cache.Group
}

func New(cfg Config) *CTF {
	c := &CTF{
		acc:     energy.New(cfg.Energy),
		params:  cfg,
		kernels: cache.New[kernelKey, []complex128](cache.OnAny()),
	}
	c.caches.Add(c.kernels)
	return c
}

func (c *CTF) Accelerator() *energy.Accelerator { return c.acc }
func (c *CTF) Params() Config                   { return c.params }

func (c *CTF) SetEnergy(ev float64) cache.Change {
	ch := c.acc.SetEnergy(ev)
	c.caches.Notify(ch)
	return ch
}

func (c *CTF) set(name string, field *float64, v float64) cache.Change {
	ch := cache.Change{Property: name, Changed: *field != v}
	*field = v
	c.caches.Notify(ch)
	return ch
}

func (c *CTF) SetSemiangleCutoff(v float64) cache.Change {
	return c.set(SemiangleCutoff, &c.params.SemiangleCutoff, v)
}

func (c *CTF) SetDefocus(v float64) cache.Change { return c.set(Defocus, &c.params.Defocus, v) }
func (c *CTF) SetCs(v float64) cache.Change      { return c.set(Cs, &c.params.Cs, v) }

func (c *CTF) SetAstigmatism(v, angle float64) []cache.Change {
	return []cache.Change{
		c.set(Astigmatism, &c.params.Astigmatism, v),
		c.set(AstigmatismAngle, &c.params.AstigmatismAngle, angle),
	}
}

// Chi returns the aberration phase at scattering angle alpha (rad) and
// azimuth phi.
func (c *CTF) Chi(alpha, phi, wavelength float64) float64 {
	p := c.params
	c10 := -p.Defocus
	a2 := alpha * alpha
	return 2 * math.Pi / wavelength * (0.5*a2*(c10+p.Astigmatism*math.Cos(2*(phi-p.AstigmatismAngle))) +
		0.25*a2*a2*p.Cs)
}

// Aperture reports whether alpha (rad) passes the objective aperture.
func (c *CTF) Aperture(alpha float64) bool {
	cut := c.params.SemiangleCutoff
	return cut <= 0 || alpha*1e3 <= cut
}

// Evaluate returns exp(-i chi) inside the aperture and 0 outside.
func (c *CTF) Evaluate(alpha, phi, wavelength float64) complex128 {
	if !c.Aperture(alpha) {
		return 0
	}
	return cmplx.Exp(complex(0, -c.Chi(alpha, phi, wavelength)))
}

// EvaluateOnGrid returns the kernel over an unshifted Fourier grid. Results
// are cached until the energy or a lens parameter changes; callers must not
// modify the returned slice.
func (c *CTF) EvaluateOnGrid(gpts [2]int, sampling [2]float64) ([]complex128, error) {
	lambda, err := c.acc.Wavelength()
	if err != nil {
		return nil, err
	}
	key := kernelKey{gpts[0], gpts[1], sampling[0], sampling[1], lambda}
	return c.kernels.Get(key, func() ([]complex128, error) {
		kx := grid.FFTFreq(gpts[0], sampling[0])
		ky := grid.FFTFreq(gpts[1], sampling[1])
		out := make([]complex128, gpts[0]*gpts[1])
		for i, x := range kx {
			for j, y := range ky {
				alpha := lambda * math.Hypot(x, y)
				out[i*gpts[1]+j] = c.Evaluate(alpha, math.Atan2(y, x), lambda)
			}
		}
		return out, nil
	})
}

// Copy returns a CTF with the same parameters and an empty cache.
func (c *CTF) Copy() *CTF {
	cp := New(c.params)
	cp.acc = c.acc.Copy()
	return cp
}
