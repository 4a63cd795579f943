package waves

import (
	"fmt"
	"math"

	"github.com/san-kum/stemsim/internal/compute"
	"github.com/san-kum/stemsim/internal/detect"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/transfer"
)

// Intensity returns |psi|^2 on the real-space grid.
func (w *Waves) Intensity() (*measure.Images, error) {
	if err := w.grid.CheckDefined(); err != nil {
		return nil, err
	}
	d := w.grid.Sampling()
	return measure.NewImages(compute.GetBackend().Abs2(w.array), w.extra, [2]float64{d[0], d[1]})
}

type DiffractionOptions struct {
	// MaxAngle defaults to ValidAngle.
	MaxAngle MaxAngle
	// FFTShift moves the zero frequency to the center of each pattern.
	FFTShift bool
	// BlockDirect zeroes the direct beam out to BlockRadius mrad, or only
	// the zero-frequency pixel when BlockRadius is not positive.
	BlockDirect bool
	BlockRadius float64
}

// fourier returns the FFT of a copy of the array.
func (w *Waves) fourier() (*field.Complex, error) {
	a := w.array.Clone()
	if err := compute.GetBackend().FFT2(a); err != nil {
		return nil, err
	}
	return a, nil
}

// DiffractionPatterns returns the far-field intensity |FFT(psi)|^2 / N,
// cropped to opts.MaxAngle. The total intensity equals that of Intensity
// when nothing is cropped.
func (w *Waves) DiffractionPatterns(opts DiffractionOptions) (*measure.DiffractionPatterns, error) {
	gpts, err := w.GptsWithinAngle(opts.MaxAngle)
	if err != nil {
		return nil, err
	}
	as, err := w.AngularSampling()
	if err != nil {
		return nil, err
	}

	psi, err := w.fourier()
	if err != nil {
		return nil, err
	}
	if psi, err = field.CropFourier(psi, gpts[0], gpts[1]); err != nil {
		return nil, err
	}
	intensity := compute.GetBackend().Abs2(psi)
	n0, n1 := w.array.PlaneShape()
	intensity.Scale(1 / float64(n0*n1))
	if opts.FFTShift {
		intensity = field.FFTShift(intensity)
	}

	dp, err := measure.NewDiffractionPatterns(intensity, w.extra, as, opts.FFTShift)
	if err != nil {
		return nil, err
	}
	if opts.BlockDirect {
		dp = dp.BlockDirect(opts.BlockRadius)
	}
	return dp, nil
}

// ApplyCTF multiplies the Fourier transform of the waves by the CTF kernel.
// A CTF without an energy adopts the wave energy. With inPlace the array of
// w is overwritten and w is returned.
func (w *Waves) ApplyCTF(ctf *transfer.CTF, inPlace bool) (*Waves, error) {
	if err := w.grid.CheckDefined(); err != nil {
		return nil, err
	}
	if err := w.acc.CheckDefined(); err != nil {
		return nil, err
	}
	if err := ctf.Accelerator().CheckMatch(w.acc); err != nil {
		return nil, err
	}
	if !ctf.Accelerator().Defined() {
		ctf.SetEnergy(w.Energy())
	}

	gpts, d := w.grid.Gpts(), w.grid.Sampling()
	kernel, err := ctf.EvaluateOnGrid([2]int{gpts[0], gpts[1]}, [2]float64{d[0], d[1]})
	if err != nil {
		return nil, err
	}

	a := w.array
	if !inPlace {
		a = a.Clone()
	}
	backend := compute.GetBackend()
	if err := backend.FFT2(a); err != nil {
		return nil, err
	}
	if err := a.MulPlanes(kernel); err != nil {
		return nil, err
	}
	if err := backend.IFFT2(a); err != nil {
		return nil, err
	}
	if inPlace {
		return w, nil
	}
	return w.with(a, w.extra)
}

// Downsample crops the Fourier transform to maxAngle. The extent is kept,
// so the sampling grows, and the values of a smooth wave are unchanged.
// The antialias fraction is rescaled so the aperture keeps its angle.
func (w *Waves) Downsample(maxAngle MaxAngle) (*Waves, error) {
	gpts, err := w.GptsWithinAngle(maxAngle)
	if err != nil {
		return nil, err
	}
	psi, err := w.fourier()
	if err != nil {
		return nil, err
	}
	if psi, err = field.CropFourier(psi, gpts[0], gpts[1]); err != nil {
		return nil, err
	}
	if err := compute.GetBackend().IFFT2(psi); err != nil {
		return nil, err
	}
	n0, n1 := w.array.PlaneShape()
	psi.Scale(complex(float64(gpts[0]*gpts[1])/float64(n0*n1), 0))

	cfg := w.config()
	if w.antialias > 0 {
		ratio := math.Min(float64(n0)/float64(gpts[0]), float64(n1)/float64(gpts[1]))
		cfg.Antialias = math.Min(w.antialias*ratio, 1)
	}
	return New(psi, cfg)
}

// Detect runs every detector on the waves.
func (w *Waves) Detect(detectors ...detect.Detector) ([]*measure.Measurement, error) {
	if len(detectors) == 0 {
		return nil, fmt.Errorf("waves: no detectors")
	}
	out := make([]*measure.Measurement, len(detectors))
	for i, d := range detectors {
		m, err := d.Detect(w)
		if err != nil {
			return nil, fmt.Errorf("waves: detector %s: %w", d.Name(), err)
		}
		out[i] = m
	}
	return out, nil
}
