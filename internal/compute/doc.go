// Package compute provides the array backends the simulation runs on.
//
// The active backend is chosen once at start-up:
//
//   - CPU: FFTs and kernels spread over one worker per core
//   - serial: everything on the calling goroutine, selected with
//     STEMSIM_BACKEND=serial
//
// # Usage
//
//	b := compute.GetBackend()
//	if err := b.FFT2(psi); err != nil {
//		return err
//	}
//	intensity := b.Abs2(psi)
//
// FFTs use github.com/mjibson/go-dsp/fft, which handles arbitrary plane
// sizes.
package compute
