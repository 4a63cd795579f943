package multislice_test

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/stemsim/internal/compute"
	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/multislice"
	"github.com/san-kum/stemsim/internal/potential"
)

func planeWave(n int, extent, ev float64) multislice.Wave {
	a, err := field.NewComplex(n, n)
	Expect(err).NotTo(HaveOccurred())
	for i := range a.Data {
		a.Data[i] = 1
	}
	g, err := grid.New(grid.Config{Extent: []float64{extent, extent}, Gpts: []int{n, n}, LockGpts: true})
	Expect(err).NotTo(HaveOccurred())
	return multislice.Wave{Array: a, Grid: g, Energy: ev, Antialias: 2. / 3}
}

func totalIntensity(a *field.Complex) float64 {
	return floats.Sum(compute.GetBackend().Abs2(a).Data)
}

type brokenSlices struct {
	potential.Slices
	failAt int
}

func (b brokenSlices) Slice(i int) (*field.Real, float64, error) {
	if i == b.failAt {
		return nil, 0, errors.New("corrupt slice")
	}
	return b.Slices.Slice(i)
}

var _ = Describe("Engine", func() {
	var (
		engine *multislice.Engine
		ctx    context.Context
	)

	BeforeEach(func() {
		engine = multislice.New(nil)
		ctx = context.Background()
	})

	Context("with a zero potential", func() {
		It("conserves the intensity of a 64x64 plane wave at 100 keV", func() {
			w := planeWave(64, 6.4, 100e3)
			p, err := potential.Zero([]int{64, 64}, []float64{6.4, 6.4}, 1, 1)
			Expect(err).NotTo(HaveOccurred())

			before := totalIntensity(w.Array)
			out, err := engine.Run(ctx, w, p, multislice.Options{Splits: 1})
			Expect(err).NotTo(HaveOccurred())

			after := totalIntensity(out)
			Expect(math.Abs(after-before) / before).To(BeNumerically("<", 1e-5))
		})

		It("conserves the norm of an arbitrary wave without antialiasing", func() {
			w := planeWave(32, 8, 200e3)
			w.Antialias = 0
			rng := rand.New(rand.NewSource(3))
			for i := range w.Array.Data {
				w.Array.Data[i] = complex(rng.NormFloat64(), rng.NormFloat64())
			}
			p, _ := potential.Zero([]int{32, 32}, []float64{8, 8}, 5, 2)

			out, err := engine.Run(ctx, w, p, multislice.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(totalIntensity(out)).To(BeNumerically("~", totalIntensity(w.Array), 1e-8*totalIntensity(w.Array)))
		})

		It("gives the same exit wave for any number of splits", func() {
			w := planeWave(16, 4, 80e3)
			rng := rand.New(rand.NewSource(5))
			for i := range w.Array.Data {
				w.Array.Data[i] = complex(rng.Float64(), 0)
			}
			w.Antialias = 0
			p, _ := potential.Zero([]int{16, 16}, []float64{4, 4}, 2, 3)

			one, err := engine.Run(ctx, w, p, multislice.Options{Splits: 1})
			Expect(err).NotTo(HaveOccurred())
			three, err := engine.Run(ctx, w, p, multislice.Options{Splits: 3})
			Expect(err).NotTo(HaveOccurred())
			for i := range one.Data {
				Expect(cmplx.Abs(one.Data[i] - three.Data[i])).To(BeNumerically("<", 1e-9))
			}
		})

		It("does not modify the input array", func() {
			w := planeWave(16, 4, 80e3)
			w.Array.Data[3] = 2
			p, _ := potential.Zero([]int{16, 16}, []float64{4, 4}, 2, 3)
			_, err := engine.Run(ctx, w, p, multislice.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Array.Data[3]).To(Equal(complex128(2)))
		})
	})

	It("applies the transmission phase of a constant potential", func() {
		w := planeWave(16, 4, 100e3)
		arr, _ := field.NewReal(3, 16, 16)
		for i := range arr.Data {
			arr.Data[i] = 10
		}
		p, err := potential.NewArray(arr, []float64{1}, []float64{4, 4}, 0)
		Expect(err).NotTo(HaveOccurred())

		out, err := engine.Run(ctx, w, p, multislice.Options{Splits: 2})
		Expect(err).NotTo(HaveOccurred())

		want := cmplx.Exp(complex(0, energy.Sigma(100e3)*10*3))
		Expect(cmplx.Abs(out.Data[0] - want)).To(BeNumerically("<", 1e-10))
		Expect(cmplx.Abs(out.Data[100] - want)).To(BeNumerically("<", 1e-10))
	})

	It("reuses one propagator for uniform slices", func() {
		w := planeWave(16, 4, 100e3)
		p, _ := potential.Zero([]int{16, 16}, []float64{4, 4}, 6, 2)
		_, err := engine.Run(ctx, w, p, multislice.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.CachedPropagators()).To(Equal(1))
	})

	It("notifies the observer after every slice", func() {
		w := planeWave(8, 2, 100e3)
		p, _ := potential.Zero([]int{8, 8}, []float64{2, 2}, 4, 1)

		var calls atomic.Int32
		obs := multislice.ObserverFunc(func(index, total int, _ *field.Complex) {
			Expect(total).To(Equal(4))
			Expect(index).To(Equal(int(calls.Load())))
			calls.Add(1)
		})
		_, err := engine.Run(ctx, w, p, multislice.Options{Observer: obs})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls.Load()).To(Equal(int32(4)))
	})

	Describe("preconditions", func() {
		It("rejects mismatched gpts", func() {
			w := planeWave(64, 6.4, 100e3)
			p, _ := potential.Zero([]int{32, 32}, []float64{6.4, 6.4}, 1, 1)
			_, err := engine.Run(ctx, w, p, multislice.Options{})
			Expect(err).To(MatchError(multislice.ErrGridMismatch))
		})

		It("rejects mismatched extent", func() {
			w := planeWave(32, 6.4, 100e3)
			p, _ := potential.Zero([]int{32, 32}, []float64{8, 8}, 1, 1)
			_, err := engine.Run(ctx, w, p, multislice.Options{})
			Expect(err).To(MatchError(multislice.ErrGridMismatch))
		})

		It("rejects a potential built for another energy", func() {
			w := planeWave(16, 4, 100e3)
			arr, _ := field.NewReal(1, 16, 16)
			p, _ := potential.NewArray(arr, []float64{1}, []float64{4, 4}, 200e3)
			_, err := engine.Run(ctx, w, p, multislice.Options{})
			Expect(err).To(MatchError(multislice.ErrEnergyMismatch))
		})

		It("needs an energy", func() {
			w := planeWave(16, 4, 0)
			p, _ := potential.Zero([]int{16, 16}, []float64{4, 4}, 1, 1)
			_, err := engine.Run(ctx, w, p, multislice.Options{})
			Expect(err).To(MatchError(energy.ErrUndefined))
		})

		It("rejects negative splits", func() {
			w := planeWave(16, 4, 100e3)
			p, _ := potential.Zero([]int{16, 16}, []float64{4, 4}, 1, 1)
			_, err := engine.Run(ctx, w, p, multislice.Options{Splits: -1})
			Expect(err).To(MatchError(multislice.ErrSplits))
		})
	})

	It("aborts with the index of a failing slice", func() {
		w := planeWave(16, 4, 100e3)
		p, _ := potential.Zero([]int{16, 16}, []float64{4, 4}, 5, 1)
		_, err := engine.Run(ctx, w, brokenSlices{Slices: p, failAt: 3}, multislice.Options{})

		var sliceErr *multislice.SliceError
		Expect(errors.As(err, &sliceErr)).To(BeTrue())
		Expect(sliceErr.Index).To(Equal(3))
	})

	It("stops on a cancelled context", func() {
		w := planeWave(16, 4, 100e3)
		p, _ := potential.Zero([]int{16, 16}, []float64{4, 4}, 5, 1)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := engine.Run(cancelled, w, p, multislice.Options{})
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("Propagator", func() {
	It("is unity at zero frequency and zero beyond the antialias aperture", func() {
		k := multislice.Propagator(16, 16, 0.25, 0.25, energy.Wavelength(100e3), 1, [2]float64{}, 2./3)
		Expect(k[0]).To(Equal(complex(1, 0)))
		// index 8 is the Nyquist frequency, outside 2/3 of it
		Expect(k[8]).To(Equal(complex(0, 0)))
		Expect(cmplx.Abs(k[1])).To(BeNumerically("~", 1, 1e-12))
	})
})
