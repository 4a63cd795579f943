package compute

import (
	"math"
	"runtime"
	"sync"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/stemsim/internal/field"
)

type CPUBackend struct {
	workers int
	name    string
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{
		workers: runtime.NumCPU(),
		name:    "cpu",
	}
}

// NewSerialBackend runs every kernel on the calling goroutine.
func NewSerialBackend() *CPUBackend {
	return &CPUBackend{workers: 1, name: "serial"}
}

func (c *CPUBackend) Name() string    { return c.name }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Cleanup()        {}

func (c *CPUBackend) FFT2(a *field.Complex) error {
	return c.transform(a, fft.FFT2)
}

func (c *CPUBackend) IFFT2(a *field.Complex) error {
	return c.transform(a, fft.IFFT2)
}

func (c *CPUBackend) transform(a *field.Complex, f func([][]complex128) [][]complex128) error {
	if err := a.CheckPlanar(); err != nil {
		return err
	}
	c.eachPlane(a.NumPlanes(), func(p int) {
		rows := a.Rows(p)
		out := f(rows)
		for r := range rows {
			copy(rows[r], out[r])
		}
	})
	return nil
}

// eachPlane calls fn for every plane index, spread over the workers.
func (c *CPUBackend) eachPlane(n int, fn func(p int)) {
	if n < 2 || c.workers < 2 {
		for p := 0; p < n; p++ {
			fn(p)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + c.workers - 1) / c.workers

	for w := 0; w < c.workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for p := start; p < end; p++ {
				fn(p)
			}
		}(start, end)
	}

	wg.Wait()
}

func (c *CPUBackend) Abs2(a *field.Complex) *field.Real {
	out := &field.Real{Shape: append([]int(nil), a.Shape...), Data: make([]float64, len(a.Data))}
	for i, v := range a.Data {
		out.Data[i] = real(v)*real(v) + imag(v)*imag(v)
	}
	return out
}

// ComplexExponential returns exp(i*x) element-wise.
func (c *CPUBackend) ComplexExponential(x *field.Real) *field.Complex {
	out := &field.Complex{Shape: append([]int(nil), x.Shape...), Data: make([]complex128, len(x.Data))}
	for i, v := range x.Data {
		s, co := math.Sincos(v)
		out.Data[i] = complex(co, s)
	}
	return out
}
