package waves

import (
	"context"
	"iter"
	"math"
	"math/cmplx"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/cache"
	"github.com/san-kum/stemsim/internal/detect"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/potential"
	"github.com/san-kum/stemsim/internal/scan"
	"github.com/san-kum/stemsim/internal/transfer"
)

func ones(t *testing.T, shape ...int) *field.Complex {
	t.Helper()
	a, err := field.NewComplex(shape...)
	require.NoError(t, err)
	for i := range a.Data {
		a.Data[i] = 1
	}
	return a
}

func planeWave(t *testing.T, n int, extent float64) *Waves {
	t.Helper()
	w, err := New(ones(t, n, n), Config{Energy: 100e3, Extent: []float64{extent, extent}})
	require.NoError(t, err)
	return w
}

func TestNewShape(t *testing.T) {
	a, _ := field.NewComplex(8)
	_, err := New(a, Config{Energy: 100e3, Extent: []float64{1, 1}})
	assert.ErrorIs(t, err, ErrShape)

	b, _ := field.NewComplex(2, 3, 8, 8)
	_, err = New(b, Config{Energy: 100e3, ExtraAxes: []axes.Axis{axes.ProbePositions()}})
	assert.ErrorIs(t, err, ErrShape)

	w, err := New(b, Config{Energy: 100e3, Extent: []float64{4, 4}})
	require.NoError(t, err)
	assert.Len(t, w.ExtraAxes(), 2)
	assert.Len(t, w.AxesMetadata(), 4)
	assert.Equal(t, []int{8, 8}, w.Grid().Gpts())
	assert.Equal(t, []float64{0.5, 0.5}, w.Grid().Sampling())
	assert.InDelta(t, DefaultAntialias, w.Antialias(), 1e-15)
	assert.True(t, w.Grid().Locked("gpts"))
}

func TestIndexSharesArray(t *testing.T) {
	w, err := New(ones(t, 3, 4, 4), Config{Energy: 80e3, Extent: []float64{2, 2}, ExtraAxes: []axes.Axis{axes.ProbePositions()}})
	require.NoError(t, err)

	sub, err := w.Index(1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4}, sub.Shape())
	sub.Array().Data[0] = 5
	assert.Equal(t, complex(5, 0), w.Array().Data[16])

	_, err = sub.Index(0)
	assert.ErrorIs(t, err, ErrShape)

	cp := w.Copy()
	cp.Array().Data[0] = 7
	assert.Equal(t, complex(1, 0), w.Array().Data[0])
}

func TestAngles(t *testing.T) {
	w := planeWave(t, 64, 64)
	lambda := energy.Wavelength(100e3)

	as, err := w.AngularSampling()
	require.NoError(t, err)
	assert.InDelta(t, lambda/64*1e3, as[0], 1e-12)

	cut, err := w.CutoffAngles()
	require.NoError(t, err)
	assert.InDelta(t, 2./3*lambda/2*1e3, cut[1], 1e-12)

	tests := []struct {
		max  MaxAngle
		want int
	}{
		{ValidAngle, 33},
		{CutoffAngle, 45},
		{LimitAngle, 64},
		{Angle(1e6), 64},
	}
	for _, tt := range tests {
		t.Run(tt.max.String(), func(t *testing.T) {
			gpts, err := w.GptsWithinAngle(tt.max)
			require.NoError(t, err)
			assert.Equal(t, [2]int{tt.want, tt.want}, gpts)
		})
	}

	_, err = w.GptsWithinAngle(Angle(-1))
	assert.ErrorIs(t, err, ErrAngle)
}

func TestParseMaxAngle(t *testing.T) {
	tests := []struct {
		in      string
		want    MaxAngle
		wantErr bool
	}{
		{"", ValidAngle, false},
		{"cutoff", CutoffAngle, false},
		{"limit", LimitAngle, false},
		{"40", Angle(40), false},
		{"wide", MaxAngle{}, true},
		{"-3", MaxAngle{}, true},
	}
	for _, tt := range tests {
		got, err := ParseMaxAngle(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrAngle, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestPlaneWaveIntensityConservation(t *testing.T) {
	pw, err := NewPlaneWave(PlaneWaveConfig{Energy: 100e3, Sampling: []float64{1, 1}})
	require.NoError(t, err)
	pot, err := potential.Zero([]int{64, 64}, []float64{64, 64}, 5, 2)
	require.NoError(t, err)

	exit, err := pw.Multislice(context.Background(), pot, MultisliceOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{64, 64}, pw.Grid().Gpts())

	img, err := exit.Intensity()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, img.Sum()/(64*64), 1e-5)
}

func TestDiffractionPatterns(t *testing.T) {
	w := planeWave(t, 16, 4)

	dp, err := w.DiffractionPatterns(DiffractionOptions{MaxAngle: LimitAngle, FFTShift: true})
	require.NoError(t, err)
	assert.Equal(t, []int{16, 16}, dp.Shape())
	assert.InDelta(t, 256, dp.Array.Data[8*16+8], 1e-9)
	assert.InDelta(t, 256, dp.Sum(), 1e-9)
	assert.True(t, dp.FFTShifted)

	blocked, err := w.DiffractionPatterns(DiffractionOptions{MaxAngle: LimitAngle, BlockDirect: true})
	require.NoError(t, err)
	assert.InDelta(t, 0, blocked.Sum(), 1e-9)

	valid, err := w.DiffractionPatterns(DiffractionOptions{})
	require.NoError(t, err)
	gpts, _ := w.GptsWithinAngle(ValidAngle)
	assert.Equal(t, []int{gpts[0], gpts[1]}, valid.Shape())
}

func TestDownsample(t *testing.T) {
	w := planeWave(t, 64, 64)
	down, err := w.Downsample(ValidAngle)
	require.NoError(t, err)

	assert.Equal(t, []int{33, 33}, down.Shape())
	assert.Equal(t, []float64{64, 64}, down.Grid().Extent())
	for _, v := range down.Array().Data {
		assert.InDelta(t, 1, cmplx.Abs(v), 1e-9)
	}
	assert.Equal(t, 1.0, down.Antialias())

	as, err := w.AngularSampling()
	require.NoError(t, err)
	small, err := w.Downsample(Angle(as[0] * 20.5))
	require.NoError(t, err)
	assert.Equal(t, []int{43, 43}, small.Shape())
	assert.Less(t, small.Antialias(), 1.0)
	assert.Greater(t, small.Antialias(), w.Antialias())
}

func TestApplyCTF(t *testing.T) {
	w := planeWave(t, 32, 8)
	ctf := transfer.New(transfer.Config{Defocus: 50})

	out, err := w.ApplyCTF(ctf, false)
	require.NoError(t, err)
	ev, ok := ctf.Accelerator().Energy()
	assert.True(t, ok, "ctf adopts the wave energy")
	assert.Equal(t, 100e3, ev)
	for _, v := range out.Array().Data {
		assert.InDelta(t, 1, real(v), 1e-9)
		assert.InDelta(t, 0, imag(v), 1e-9)
	}

	_, err = w.ApplyCTF(transfer.New(transfer.Config{Energy: 300e3}), false)
	assert.ErrorIs(t, err, energy.ErrInconsistent)

	rng := rand.New(rand.NewSource(3))
	for i := range w.Array().Data {
		w.Array().Data[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	before := w.Array().Clone()
	same, err := w.ApplyCTF(transfer.New(transfer.Config{Energy: 100e3, Defocus: 30, Cs: 1e4}), true)
	require.NoError(t, err)
	assert.Same(t, w, same)
	assert.NotEqual(t, before.Data, w.Array().Data)
}

func TestFrozenPhononStack(t *testing.T) {
	cfg := potential.DefaultLatticeConfig()
	cfg.Gpts = []int{32, 32}
	cfg.Extent = []float64{8, 8}
	cfg.NumSlices = 3
	cfg.FrozenPhonons = 3
	lat, err := potential.NewLattice(cfg)
	require.NoError(t, err)

	w := planeWave(t, 32, 8)
	exit, err := w.Multislice(context.Background(), lat, MultisliceOptions{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 32, 32}, exit.Shape())
	assert.Equal(t, axes.Ensemble, exit.ExtraAxes()[0].Kind)
	assert.Equal(t, w.Antialias(), exit.Antialias())

	first, _ := exit.Index(0)
	second, _ := exit.Index(1)
	assert.NotEqual(t, first.Array().Data, second.Array().Data)
}

func newProbe(t *testing.T) *Probe {
	t.Helper()
	pr, err := NewProbe(ProbeConfig{
		Extent: []float64{6.4, 6.4},
		Gpts:   []int{64, 64},
		CTF:    transfer.Config{Energy: 100e3, SemiangleCutoff: 20},
	})
	require.NoError(t, err)
	return pr
}

func TestProbeBuild(t *testing.T) {
	pr := newProbe(t)

	w, err := pr.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{64, 64}, w.Shape())
	img, err := w.Intensity()
	require.NoError(t, err)
	assert.InDelta(t, 1, img.Sum(), 1e-9)
	peak := floats.MaxIdx(img.Array.Data)
	assert.Equal(t, 32*64+32, peak)

	many, err := pr.Build([][2]float64{{1, 1}, {3.2, 3.2}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 64, 64}, many.Shape())
	assert.Equal(t, axes.Positions, many.ExtraAxes()[0].Kind)
	one, _ := many.Index(0)
	i, _ := one.Intensity()
	assert.Equal(t, 10*64+10, floats.MaxIdx(i.Array.Data))

	closed, err := NewProbe(ProbeConfig{Extent: []float64{6.4, 6.4}, Gpts: []int{64, 64}, CTF: transfer.Config{Energy: 100e3, SemiangleCutoff: 1e-6}})
	require.NoError(t, err)
	_, err = closed.Build(nil)
	assert.NoError(t, err, "zero frequency always passes")
}

func TestProbeMultisliceConservesIntensity(t *testing.T) {
	pr := newProbe(t)
	pot, err := potential.Zero([]int{64, 64}, []float64{6.4, 6.4}, 4, 2)
	require.NoError(t, err)

	exit, err := pr.Multislice(context.Background(), nil, pot, MultisliceOptions{Splits: 2})
	require.NoError(t, err)
	img, err := exit.Intensity()
	require.NoError(t, err)
	assert.InDelta(t, 1, img.Sum(), 1e-5)
}

func TestProbeScan(t *testing.T) {
	pr := newProbe(t)
	pot, err := potential.Zero([]int{64, 64}, []float64{6.4, 6.4}, 2, 2)
	require.NoError(t, err)
	s, err := scan.NewGridScan([2]float64{1, 1}, [2]float64{3, 3}, []int{3, 2}, nil, false)
	require.NoError(t, err)

	var last int
	ms, err := pr.Scan(context.Background(), s, []detect.Detector{detect.NewAnnular(0, 0), detect.NewPixelated()}, pot,
		ScanOptions{BatchSize: 4, Workers: 2, Progress: func(done, total int) {
			assert.Equal(t, 6, total)
			last = max(last, done)
		}})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 6, last)

	assert.Equal(t, []int{3, 2}, ms[0].Shape())
	for _, v := range ms[0].Array.Data {
		assert.InDelta(t, 1, v, 1e-9)
	}
	assert.Equal(t, []int{3, 2, 32, 32}, ms[1].Shape())
	first, _ := ms[1].Index(0)
	row, _ := first.Index(0)
	assert.InDelta(t, 1, row.Sum(), 1e-6)

	_, err = pr.Scan(context.Background(), s, nil, pot, ScanOptions{})
	assert.Error(t, err)
}

func TestProbeProfile(t *testing.T) {
	pr := newProbe(t)
	prof, err := pr.Profile(math.Pi / 4)
	require.NoError(t, err)
	assert.Equal(t, []int{64}, prof.Shape())
	assert.Equal(t, 32, floats.MaxIdx(prof.Array.Data))
	assert.InDelta(t, -3.2, prof.Axes[0].Offset, 1e-12)
}

func TestZarrRoundTrip(t *testing.T) {
	a, err := field.NewComplex(2, 16, 12)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(5))
	for i := range a.Data {
		a.Data[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	w, err := New(a, Config{
		Energy:    200e3,
		Extent:    []float64{10.1, 1.0 / 3},
		Tilt:      [2]float64{1.5, -2},
		ExtraAxes: []axes.Axis{axes.FrozenPhonons()},
	})
	require.NoError(t, err)

	path := t.TempDir() + "/waves.zarr"
	require.NoError(t, w.ToZarr(path, false))
	require.Error(t, w.ToZarr(path, false))
	require.NoError(t, w.ToZarr(path, true))

	got, err := FromZarr(path)
	require.NoError(t, err)
	assert.Equal(t, w.Array().Shape, got.Array().Shape)
	assert.Equal(t, w.Array().Data, got.Array().Data)
	assert.Equal(t, w.Energy(), got.Energy())
	assert.Equal(t, w.Grid().Extent(), got.Grid().Extent())
	assert.Equal(t, w.Tilt(), got.Tilt())
	assert.Equal(t, w.Antialias(), got.Antialias())
	assert.Equal(t, w.ExtraAxes(), got.ExtraAxes())
}

func TestDetect(t *testing.T) {
	w := planeWave(t, 16, 4)
	ms, err := w.Detect(detect.NewAnnular(0, 0), detect.NewPixelated())
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.InDelta(t, 1, ms[0].Array.Data[0], 1e-12)

	_, err = w.Detect()
	assert.Error(t, err)
}

func TestProbeKernelInvalidation(t *testing.T) {
	pr, err := NewProbe(ProbeConfig{Gpts: []int{64, 64}, CTF: transfer.Config{Energy: 100e3, SemiangleCutoff: 20}})
	require.NoError(t, err)
	pot, err := potential.Zero([]int{64, 64}, []float64{6.4, 6.4}, 1, 1)
	require.NoError(t, err)
	require.NoError(t, pr.match(pot))
	assert.Equal(t, []float64{6.4, 6.4}, pr.Grid().Extent())

	first, err := pr.kernel()
	require.NoError(t, err)
	again, err := pr.kernel()
	require.NoError(t, err)
	assert.Same(t, &first[0], &again[0], "kernel is computed once per grid")
	assert.Equal(t, 1, pr.kernels.Len())

	pr.caches.Notify(cache.Changed(energy.Property))
	assert.Equal(t, 1, pr.kernels.Len(), "energy is not a purging property")

	changes, err := pr.SetExtent([]float64{8, 8})
	require.NoError(t, err)
	assert.NotEmpty(t, changes)
	assert.Equal(t, 0, pr.kernels.Len())

	resized, err := pr.kernel()
	require.NoError(t, err)
	assert.NotEqual(t, first, resized)
	assert.ErrorIs(t, pr.match(pot), grid.ErrInconsistent)
	assert.Equal(t, 1, pr.kernels.Len(), "a failed match changes nothing")
}

// countingLattice records how many frozen phonon configurations are built.
type countingLattice struct {
	*potential.Lattice
	built atomic.Int32
}

func (c *countingLattice) FrozenPhononPotentials() iter.Seq2[int, potential.Slices] {
	return func(yield func(int, potential.Slices) bool) {
		for i := range c.NumFrozenPhonons() {
			cfg, err := c.Configuration(i)
			if err != nil {
				return
			}
			c.built.Add(1)
			if !yield(i, cfg) {
				return
			}
		}
	}
}

func newCountingLattice(t *testing.T, phonons int) *countingLattice {
	t.Helper()
	cfg := potential.DefaultLatticeConfig()
	cfg.Gpts = []int{32, 32}
	cfg.Extent = []float64{8, 8}
	cfg.NumSlices = 2
	cfg.FrozenPhonons = phonons
	lat, err := potential.NewLattice(cfg)
	require.NoError(t, err)
	return &countingLattice{Lattice: lat}
}

func TestMultisliceBuildsEachConfigurationOnce(t *testing.T) {
	lat := newCountingLattice(t, 3)
	exit, err := planeWave(t, 32, 8).Multislice(context.Background(), lat, MultisliceOptions{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 32, 32}, exit.Shape())
	assert.Equal(t, int32(3), lat.built.Load())
}

func TestProbeScanBuildsEachConfigurationOnce(t *testing.T) {
	lat := newCountingLattice(t, 3)
	pr, err := NewProbe(ProbeConfig{
		Extent: []float64{8, 8},
		Gpts:   []int{32, 32},
		CTF:    transfer.Config{Energy: 100e3, SemiangleCutoff: 20},
	})
	require.NoError(t, err)
	s, err := scan.NewGridScan([2]float64{0, 0}, [2]float64{8, 8}, []int{8, 8}, nil, false)
	require.NoError(t, err)

	var last, total int
	ms, err := pr.Scan(context.Background(), s, []detect.Detector{detect.NewAnnular(0, 0)}, lat,
		ScanOptions{BatchSize: 16, Workers: 1, Progress: func(d, n int) {
			last, total = max(last, d), n
		}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), lat.built.Load())
	assert.Equal(t, 3*64, total)
	assert.Equal(t, total, last)

	require.Len(t, ms, 1)
	assert.Equal(t, []int{8, 8}, ms[0].Shape())
	for _, v := range ms[0].Array.Data {
		assert.InDelta(t, 1, v, 1e-6)
	}
}
