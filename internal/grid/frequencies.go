package grid

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// FFTFreq returns the discrete Fourier sample frequencies for n points at
// spacing d, in the standard unshifted order.
func FFTFreq(n int, d float64) []float64 {
	out := make([]float64, n)
	half := (n - 1) / 2
	for i := 0; i < n; i++ {
		k := i
		if i > half {
			k = i - n
		}
		out[i] = float64(k) / (float64(n) * d)
	}
	return out
}

// SpatialFrequencies returns the fftfreq vectors of every axis in 1/Å.
func (g *Grid) SpatialFrequencies() ([][]float64, error) {
	if err := g.CheckDefined(); err != nil {
		return nil, err
	}
	gpts, sampling := g.Gpts(), g.Sampling()
	out := make([][]float64, g.dims)
	for i := range out {
		out[i] = FFTFreq(gpts[i], sampling[i])
	}
	return out, nil
}

// SpatialFrequencyLimits returns the lowest and highest sampled frequency of
// every axis. Even grids exclude the positive Nyquist frequency, odd grids
// are symmetric.
func (g *Grid) SpatialFrequencyLimits() ([][2]float64, error) {
	gpts, sampling := g.Gpts(), g.Sampling()
	if gpts == nil || sampling == nil {
		return nil, fmt.Errorf("%w: gpts and sampling", ErrUndefined)
	}
	out := make([][2]float64, g.dims)
	for i := range out {
		d, p := sampling[i], float64(gpts[i])
		if gpts[i]%2 == 0 {
			out[i] = [2]float64{-1 / (2 * d), 1/(2*d) - 1/(d*p)}
		} else {
			out[i] = [2]float64{-1/(2*d) + 1/(2*d*p), 1/(2*d) - 1/(2*d*p)}
		}
	}
	return out, nil
}

func (g *Grid) SpatialFrequencyExtent() ([]float64, error) {
	limits, err := g.SpatialFrequencyLimits()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(limits))
	for i, l := range limits {
		out[i] = l[1] - l[0]
	}
	return out, nil
}

// Linspace returns the real-space coordinates of every axis, starting at 0.
func (g *Grid) Linspace() ([][]float64, error) {
	if err := g.CheckDefined(); err != nil {
		return nil, err
	}
	gpts, extent := g.Gpts(), g.Extent()
	out := make([][]float64, g.dims)
	for i := range out {
		n := gpts[i]
		out[i] = make([]float64, n)
		if n < 2 {
			continue
		}
		end := extent[i]
		if !g.endpoint {
			end -= extent[i] / float64(n)
		}
		floats.Span(out[i], 0, end)
	}
	return out, nil
}
