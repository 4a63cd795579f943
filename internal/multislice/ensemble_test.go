package multislice_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/stemsim/internal/multislice"
)

var _ = Describe("Ensemble", func() {
	It("returns results in index order", func() {
		out, err := multislice.Ensemble(context.Background(), 8, 3, func(_ context.Context, i int) (int, error) {
			return i * i, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]int{0, 1, 4, 9, 16, 25, 36, 49}))
	})

	It("fails when any job fails", func() {
		boom := errors.New("boom")
		_, err := multislice.Ensemble(context.Background(), 4, 0, func(_ context.Context, i int) (int, error) {
			if i == 2 {
				return 0, boom
			}
			return i, nil
		})
		Expect(err).To(MatchError(boom))
	})
})

func counted(n int, pulled *atomic.Int32) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for i := range n {
			pulled.Add(1)
			if !yield(i, i*10) {
				return
			}
		}
	}
}

var _ = Describe("EnsembleSeq", func() {
	It("pulls inputs only as workers free up", func() {
		var pulled, running, peak atomic.Int32
		out, err := multislice.EnsembleSeq(context.Background(), counted(6, &pulled), 6, 2, func(_ context.Context, i, s int) (int, error) {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			return s + i, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]int{0, 11, 22, 33, 44, 55}))
		Expect(pulled.Load()).To(Equal(int32(6)))
		Expect(peak.Load()).To(BeNumerically("<=", 2))
	})

	It("stops pulling after a failure", func() {
		var pulled atomic.Int32
		boom := errors.New("boom")
		_, err := multislice.EnsembleSeq(context.Background(), counted(100, &pulled), 100, 1, func(_ context.Context, i, _ int) (int, error) {
			if i == 1 {
				return 0, boom
			}
			return i, nil
		})
		Expect(err).To(MatchError(boom))
		Expect(pulled.Load()).To(BeNumerically("<", 100))
	})

	It("rejects indices outside the declared length", func() {
		var pulled atomic.Int32
		_, err := multislice.EnsembleSeq(context.Background(), counted(3, &pulled), 2, 0, func(_ context.Context, i, _ int) (int, error) {
			return i, nil
		})
		Expect(err).To(MatchError(ContainSubstring("outside")))
	})
})

var _ = Describe("ParallelFor", func() {
	It("covers every index exactly once", func() {
		var mu sync.Mutex
		seen := make([]int, 100)
		err := multislice.ParallelFor(context.Background(), 100, 7, 4, func(_ context.Context, start, end int) error {
			mu.Lock()
			defer mu.Unlock()
			for i := start; i < end; i++ {
				seen[i]++
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		for i, n := range seen {
			Expect(n).To(Equal(1), "index %d", i)
		}
	})
})

var _ = Describe("Pool", func() {
	It("hands back cleared buffers of its size", func() {
		p := multislice.NewPool(4)
		buf := p.Get()
		Expect(buf).To(HaveLen(4))
		buf[0] = 1
		p.Put(buf)
		Expect(p.Get()).To(Equal([]float64{0, 0, 0, 0}))

		p.Put(make([]float64, 3))
		Expect(p.Get()).To(HaveLen(4))
	})
})
