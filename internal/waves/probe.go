package waves

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/compute"
	"github.com/san-kum/stemsim/internal/detect"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/multislice"
	"github.com/san-kum/stemsim/internal/potential"
	"github.com/san-kum/stemsim/internal/scan"
	"github.com/san-kum/stemsim/internal/telemetry"
	"github.com/san-kum/stemsim/internal/transfer"
)

// ErrEmptyProbe is returned when the aperture passes no frequency.
var ErrEmptyProbe = errors.New("waves: probe aperture passes no frequency")

// DefaultBatchSize is the number of probe positions propagated together.
const DefaultBatchSize = 16

type ProbeConfig struct {
	Extent    []float64
	Gpts      []int
	Sampling  []float64
	Tilt      [2]float64
	Antialias float64
	// CTF holds the energy, the aperture and the aberrations.
	CTF transfer.Config
}

// Probe builds focused probes from a CTF. The probe energy is the CTF
// energy.
type Probe struct {
	grid      *grid.Grid
	ctf       *transfer.CTF
	tilt      [2]float64
	antialias float64

	kernels *cache.Table[kernelKey, []complex128]
	caches  cache.Group
}

type kernelKey struct {
	gpts       [2]int
	sampling   [2]float64
	wavelength float64
}

func NewProbe(cfg ProbeConfig) (*Probe, error) {
	g, err := grid.New(grid.Config{Extent: cfg.Extent, Gpts: cfg.Gpts, Sampling: cfg.Sampling})
	if err != nil {
		return nil, err
	}
	antialias := cfg.Antialias
	if antialias == 0 {
		antialias = DefaultAntialias
	}
	pr := &Probe{
		grid:      g,
		ctf:       transfer.New(cfg.CTF),
		tilt:      cfg.Tilt,
		antialias: antialias,
		kernels:   cache.New[kernelKey, []complex128](cache.On(grid.Extent, grid.Gpts, grid.Sampling)),
	}
	pr.caches.Add(pr.kernels)
	return pr, nil
}

func (pr *Probe) notify(changes []cache.Change, err error) ([]cache.Change, error) {
	pr.caches.Notify(changes...)
	return changes, err
}

func (pr *Probe) SetExtent(v []float64) ([]cache.Change, error) {
	return pr.notify(pr.grid.SetExtent(v))
}

func (pr *Probe) SetGpts(v []int) ([]cache.Change, error) {
	return pr.notify(pr.grid.SetGpts(v))
}

func (pr *Probe) SetSampling(v []float64) ([]cache.Change, error) {
	return pr.notify(pr.grid.SetSampling(v))
}

// match completes the grid and energy from p and drops kernels the
// changes invalidate.
func (pr *Probe) match(p potential.Slices) error {
	_, err := pr.notify(matchPotential(pr.grid, pr.ctf.Accelerator(), p))
	return err
}

func (pr *Probe) Grid() *grid.Grid                 { return pr.grid }
func (pr *Probe) CTF() *transfer.CTF               { return pr.ctf }
func (pr *Probe) Accelerator() *energy.Accelerator { return pr.ctf.Accelerator() }

func (pr *Probe) Energy() float64 {
	ev, _ := pr.ctf.Accelerator().Energy()
	return ev
}

// kernel is the CTF inside the antialias aperture, scaled so that every
// built probe has unit total intensity.
func (pr *Probe) kernel() ([]complex128, error) {
	if err := pr.grid.CheckDefined(); err != nil {
		return nil, err
	}
	lambda, err := pr.ctf.Accelerator().Wavelength()
	if err != nil {
		return nil, err
	}
	gpts, d := pr.grid.Gpts(), pr.grid.Sampling()
	key := kernelKey{gpts: [2]int{gpts[0], gpts[1]}, sampling: [2]float64{d[0], d[1]}, wavelength: lambda}
	return pr.kernels.Get(key, func() ([]complex128, error) {
		return pr.evaluateKernel(key.gpts, key.sampling)
	})
}

func (pr *Probe) evaluateKernel(gpts [2]int, d [2]float64) ([]complex128, error) {
	ctf, err := pr.ctf.EvaluateOnGrid(gpts, d)
	if err != nil {
		return nil, err
	}

	cutoff := math.Inf(1)
	if pr.antialias > 0 {
		cutoff = pr.antialias / (2 * math.Max(d[0], d[1]))
	}
	kx := grid.FFTFreq(gpts[0], d[0])
	ky := grid.FFTFreq(gpts[1], d[1])
	out := make([]complex128, len(ctf))
	var total float64
	for i, x := range kx {
		for j, y := range ky {
			if math.Hypot(x, y) >= cutoff {
				continue
			}
			v := ctf[i*gpts[1]+j]
			out[i*gpts[1]+j] = v
			total += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	if total == 0 {
		return nil, ErrEmptyProbe
	}

	// sum |K|^2 = N gives unit intensity after the normalized inverse FFT.
	scale := complex(math.Sqrt(float64(len(out))/total), 0)
	for i := range out {
		out[i] *= scale
	}
	return out, nil
}

func (pr *Probe) center() [2]float64 {
	e := pr.grid.Extent()
	return [2]float64{e[0] / 2, e[1] / 2}
}

// build returns probes at the given positions with the given array shape.
func (pr *Probe) build(positions [][2]float64, shape []int, extra []axes.Axis) (*Waves, error) {
	k, err := pr.kernel()
	if err != nil {
		return nil, err
	}
	a, err := field.NewComplex(shape...)
	if err != nil {
		return nil, err
	}
	if a.NumPlanes() != len(positions) {
		return nil, fmt.Errorf("%w: %d positions for shape %v", ErrShape, len(positions), shape)
	}

	gpts, d := pr.grid.Gpts(), pr.grid.Sampling()
	kx := grid.FFTFreq(gpts[0], d[0])
	ky := grid.FFTFreq(gpts[1], d[1])
	for p, r := range positions {
		plane := a.Plane(p)
		for i, x := range kx {
			for j, y := range ky {
				shift := cmplx.Exp(complex(0, -2*math.Pi*(x*r[0]+y*r[1])))
				plane[i*gpts[1]+j] = k[i*gpts[1]+j] * shift
			}
		}
	}
	if err := compute.GetBackend().IFFT2(a); err != nil {
		return nil, err
	}
	return New(a, Config{
		Energy:    pr.Energy(),
		Extent:    pr.grid.Extent(),
		Tilt:      pr.tilt,
		Antialias: pr.antialias,
		ExtraAxes: extra,
	})
}

// Build returns one probe per position, stacked along a positions axis. Nil
// positions build a single 2D probe at the center of the grid.
func (pr *Probe) Build(positions [][2]float64) (*Waves, error) {
	if err := pr.grid.CheckDefined(); err != nil {
		return nil, err
	}
	gpts := pr.grid.Gpts()
	if positions == nil {
		return pr.build([][2]float64{pr.center()}, gpts, nil)
	}
	return pr.build(positions, []int{len(positions), gpts[0], gpts[1]}, []axes.Axis{axes.ProbePositions()})
}

// BuildScan returns probes at every position of s, shaped like the scan.
func (pr *Probe) BuildScan(s scan.Scan) (*Waves, error) {
	if err := pr.grid.CheckDefined(); err != nil {
		return nil, err
	}
	positions, err := s.Positions()
	if err != nil {
		return nil, err
	}
	gpts := pr.grid.Gpts()
	return pr.build(positions, append(s.Shape(), gpts[0], gpts[1]), s.Axes())
}

// Multislice matches the grid to p, builds probes at positions and
// propagates them through p.
func (pr *Probe) Multislice(ctx context.Context, positions [][2]float64, p potential.Potential, opts MultisliceOptions) (*Waves, error) {
	if err := pr.match(p); err != nil {
		return nil, err
	}
	w, err := pr.Build(positions)
	if err != nil {
		return nil, err
	}
	return w.Multislice(ctx, p, opts)
}

type ScanOptions struct {
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// Workers limits concurrent batches. Zero means no limit.
	Workers  int
	Splits   int
	Observer multislice.Observer
	Engine   *multislice.Engine
	// Progress is called after every batch with the number of positions
	// done, counted once per frozen phonon configuration. Calls are
	// serialized.
	Progress func(done, total int)
}

// Scan propagates a probe to every position of s and reduces the exit
// waves with each detector. Frozen phonon configurations are built one at a
// time and every batch of positions runs through each of them; detector
// outputs are averaged over configurations, so the result holds one
// measurement per detector shaped scan + detector.
func (pr *Probe) Scan(ctx context.Context, s scan.Scan, detectors []detect.Detector, p potential.Potential, opts ScanOptions) ([]*measure.Measurement, error) {
	if len(detectors) == 0 {
		return nil, fmt.Errorf("waves: no detectors")
	}
	if err := pr.match(p); err != nil {
		return nil, err
	}
	lambda, err := pr.ctf.Accelerator().Wavelength()
	if err != nil {
		return nil, err
	}
	positions, err := s.Positions()
	if err != nil {
		return nil, err
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	total := len(positions)
	nBatches := (total + batch - 1) / batch
	phonons := max(p.NumFrozenPhonons(), 1)
	weight := 1 / float64(phonons)

	ctx, span := telemetry.Tracer().Start(ctx, "probe.Scan")
	defer span.End()
	span.SetAttributes(
		attribute.Int("positions", total),
		attribute.Int("batches", nBatches),
		attribute.Int("detectors", len(detectors)),
		attribute.Int("frozen_phonons", phonons),
	)
	fail := func(err error) ([]*measure.Measurement, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]*measure.Measurement, len(detectors))
	blocks := make([]int, len(detectors))
	for k, d := range detectors {
		m, err := d.AllocateMeasurement(pr.grid, lambda, s)
		if err != nil {
			return nil, err
		}
		out[k], blocks[k] = m, m.Array.Size()/max(total, 1)
	}

	var (
		mu   sync.Mutex
		done int
	)
	mopts := MultisliceOptions{Splits: opts.Splits, Observer: opts.Observer, Engine: opts.Engine}
	runBatches := func(slices potential.Slices) error {
		_, err := multislice.Ensemble(ctx, nBatches, opts.Workers, func(ctx context.Context, b int) (struct{}, error) {
			start, end := b*batch, min((b+1)*batch, total)
			probes, err := pr.Build(positions[start:end])
			if err != nil {
				return struct{}{}, err
			}
			exit, err := probes.propagate(ctx, slices, mopts)
			if err != nil {
				return struct{}{}, err
			}
			for k, d := range detectors {
				m, err := d.Detect(exit)
				if err != nil {
					return struct{}{}, fmt.Errorf("waves: detector %s: %w", d.Name(), err)
				}
				dst := out[k].Array.Data[start*blocks[k] : end*blocks[k]]
				if len(m.Array.Data) != len(dst) {
					return struct{}{}, fmt.Errorf("%w: detector %s gave %v for %d positions", ErrShape, d.Name(), m.Shape(), end-start)
				}
				floats.AddScaled(dst, weight, m.Array.Data)
			}
			if opts.Progress != nil {
				mu.Lock()
				done += end - start
				opts.Progress(done, total*phonons)
				mu.Unlock()
			}
			return struct{}{}, nil
		})
		return err
	}

	if p.NumFrozenPhonons() <= 1 {
		if err := runBatches(p); err != nil {
			return fail(err)
		}
		return out, nil
	}
	built := 0
	for _, slices := range p.FrozenPhononPotentials() {
		if err := runBatches(slices); err != nil {
			return fail(err)
		}
		built++
	}
	if built != phonons {
		return fail(fmt.Errorf("waves: potential yielded %d of %d frozen phonon configurations", built, phonons))
	}
	return out, nil
}

// Profile returns the intensity of a centered probe along a line through
// the center at angle rad from the first axis.
func (pr *Probe) Profile(angle float64) (*measure.Measurement, error) {
	w, err := pr.Build(nil)
	if err != nil {
		return nil, err
	}
	img, err := w.Intensity()
	if err != nil {
		return nil, err
	}

	gpts, d, e := pr.grid.Gpts(), pr.grid.Sampling(), pr.grid.Extent()
	n := max(gpts[0], gpts[1])
	length := math.Min(e[0], e[1])
	step := length / float64(n)
	c := pr.center()
	dx, dy := math.Cos(angle), math.Sin(angle)

	arr, err := field.NewReal(n)
	if err != nil {
		return nil, err
	}
	plane := img.Array.Data
	for i := range n {
		t := -length/2 + float64(i)*step
		arr.Data[i] = bilinear(plane, gpts[0], gpts[1], (c[0]+t*dx)/d[0], (c[1]+t*dy)/d[1])
	}

	ax := axes.RealSpaceAxis("r", step)
	ax.Offset = -length / 2
	m, err := measure.New(arr, []axes.Axis{ax})
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = "probe profile", "intensity"
	return m, nil
}

// bilinear interpolates a periodic n0 x n1 plane at fractional pixel
// coordinates.
func bilinear(plane []float64, n0, n1 int, x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	wrap := func(v float64, n int) int { return ((int(v) % n) + n) % n }
	i0, i1 := wrap(x0, n0), wrap(x0+1, n0)
	j0, j1 := wrap(y0, n1), wrap(y0+1, n1)
	return (1-fx)*(1-fy)*plane[i0*n1+j0] +
		fx*(1-fy)*plane[i1*n1+j0] +
		(1-fx)*fy*plane[i0*n1+j1] +
		fx*fy*plane[i1*n1+j1]
}
