package multislice

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/compute"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/potential"
	"github.com/san-kum/stemsim/internal/telemetry"
)

// Wave is the state carried through the slices. The trailing two axes of
// Array must match the grid.
type Wave struct {
	Array  *field.Complex
	Grid   *grid.Grid
	Energy float64 // eV
	// Tilt is the beam tilt in mrad.
	Tilt [2]float64
	// Antialias is the aperture radius as a fraction of the Nyquist
	// frequency. Non-positive disables the aperture.
	Antialias float64
}

// Observer is called after every slice with the current wave array. The
// array must not be retained or modified.
type Observer interface {
	OnSlice(index, total int, array *field.Complex)
}

type ObserverFunc func(index, total int, array *field.Complex)

func (f ObserverFunc) OnSlice(index, total int, array *field.Complex) { f(index, total, array) }

type Options struct {
	// Splits is the number of transmit/propagate sub-steps per slice.
	Splits   int
	Observer Observer
}

type propagatorKey struct {
	n0, n1     int
	d0, d1     float64
	wavelength float64
	dz         float64
	tilt       [2]float64
	antialias  float64
}

// Engine runs multislice propagation. It is safe for concurrent use; the
// propagator cache and buffer pools are shared between runs.
type Engine struct {
	backend     compute.Backend
	propagators *cache.Table[propagatorKey, []complex128]
	buffers     pools
}

// New returns an engine on the given backend, or the active one when nil.
func New(backend compute.Backend) *Engine {
	if backend == nil {
		backend = compute.GetBackend()
	}
	return &Engine{
		backend:     backend,
		propagators: cache.New[propagatorKey, []complex128](cache.Independent()),
	}
}

func (e *Engine) Backend() compute.Backend { return e.backend }

// CachedPropagators reports how many propagator kernels are cached.
func (e *Engine) CachedPropagators() int { return e.propagators.Len() }

// Check verifies the preconditions of Run without propagating.
func (e *Engine) Check(w Wave, p potential.Slices) error {
	if err := w.Array.CheckPlanar(); err != nil {
		return err
	}
	if err := w.Grid.CheckDefined(); err != nil {
		return err
	}
	if w.Energy <= 0 {
		return energy.ErrUndefined
	}

	gpts := w.Grid.Gpts()
	n0, n1 := w.Array.PlaneShape()
	if gpts[0] != n0 || gpts[1] != n1 {
		return fmt.Errorf("%w: array %dx%d on grid %v", field.ErrShape, n0, n1, gpts)
	}

	pg := p.Grid()
	if pgpts := pg.Gpts(); pgpts != nil && !slices.Equal(pgpts, gpts) {
		return fmt.Errorf("%w: gpts %v != %v", ErrGridMismatch, gpts, pgpts)
	}
	if pext := pg.Extent(); pext != nil && !slices.Equal(pext, w.Grid.Extent()) {
		return fmt.Errorf("%w: extent %v != %v", ErrGridMismatch, w.Grid.Extent(), pext)
	}

	if ed, ok := p.(potential.EnergyDefined); ok {
		if ev, defined := ed.Accelerator().Energy(); defined && ev != w.Energy {
			return fmt.Errorf("%w: %g eV != %g eV", ErrEnergyMismatch, w.Energy, ev)
		}
	}
	return nil
}

// Run propagates w through every slice of p and returns the exit array. The
// input array is not modified.
func (e *Engine) Run(ctx context.Context, w Wave, p potential.Slices, opts Options) (*field.Complex, error) {
	if opts.Splits == 0 {
		opts.Splits = 1
	}
	if opts.Splits < 0 {
		return nil, ErrSplits
	}
	if err := e.Check(w, p); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "multislice.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("slices", p.NumSlices()),
		attribute.Int("splits", opts.Splits),
		attribute.IntSlice("shape", w.Array.Shape),
	)

	psi, err := e.run(ctx, w, p, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return psi, nil
}

func (e *Engine) run(ctx context.Context, w Wave, p potential.Slices, opts Options) (*field.Complex, error) {
	sigma := energy.Sigma(w.Energy)
	lambda := energy.Wavelength(w.Energy)
	gpts, sampling := w.Grid.Gpts(), w.Grid.Sampling()
	n0, n1 := gpts[0], gpts[1]

	pool := e.buffers.get(n0 * n1)
	scaled := pool.Get()
	defer pool.Put(scaled)

	psi := w.Array.Clone()
	total := p.NumSlices()
	splits := float64(opts.Splits)

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return nil, &SliceError{Index: i, Wrapped: ctx.Err()}
		default:
		}

		v, dz, err := p.Slice(i)
		if err != nil {
			return nil, &SliceError{Index: i, Wrapped: err}
		}
		if len(v.Data) != n0*n1 {
			return nil, &SliceError{Index: i, Wrapped: fmt.Errorf("%w: slice shape %v", field.ErrShape, v.Shape)}
		}

		for j, x := range v.Data {
			scaled[j] = sigma * x / splits
		}
		transmission := e.backend.ComplexExponential(&field.Real{Shape: []int{n0, n1}, Data: scaled})

		key := propagatorKey{
			n0: n0, n1: n1,
			d0: sampling[0], d1: sampling[1],
			wavelength: lambda,
			dz:         dz / splits,
			tilt:       w.Tilt,
			antialias:  w.Antialias,
		}
		prop, _ := e.propagators.Get(key, func() ([]complex128, error) {
			return Propagator(key.n0, key.n1, key.d0, key.d1, key.wavelength, key.dz, key.tilt, key.antialias), nil
		})

		for range opts.Splits {
			if err := e.step(psi, transmission.Data, prop); err != nil {
				return nil, &SliceError{Index: i, Wrapped: err}
			}
		}

		if opts.Observer != nil {
			opts.Observer.OnSlice(i, total, psi)
		}
	}
	return psi, nil
}

func (e *Engine) step(psi *field.Complex, transmission, propagator []complex128) error {
	if err := psi.MulPlanes(transmission); err != nil {
		return err
	}
	if err := e.backend.FFT2(psi); err != nil {
		return err
	}
	if err := psi.MulPlanes(propagator); err != nil {
		return err
	}
	return e.backend.IFFT2(psi)
}

// Propagator returns the Fresnel free-space kernel for a step of dz Å in
// unshifted Fourier order. Tilt is in mrad. Frequencies at or beyond
// antialias times the Nyquist frequency are zeroed.
func Propagator(n0, n1 int, d0, d1, wavelength, dz float64, tilt [2]float64, antialias float64) []complex128 {
	kx := grid.FFTFreq(n0, d0)
	ky := grid.FFTFreq(n1, d1)
	tx, ty := math.Tan(tilt[0]*1e-3), math.Tan(tilt[1]*1e-3)
	cutoff := math.Inf(1)
	if antialias > 0 {
		cutoff = antialias / (2 * math.Max(d0, d1))
	}

	out := make([]complex128, n0*n1)
	for i, x := range kx {
		for j, y := range ky {
			if math.Hypot(x, y) >= cutoff {
				continue
			}
			phase := -math.Pi*wavelength*dz*(x*x+y*y) - 2*math.Pi*dz*(x*tx+y*ty)
			out[i*n1+j] = cmplx.Exp(complex(0, phase))
		}
	}
	return out
}
